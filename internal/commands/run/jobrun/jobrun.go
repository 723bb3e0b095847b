package jobrun

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Benedito123/workflow-runner/internal/commands/run/actions"
	"github.com/Benedito123/workflow-runner/internal/commands/run/log/buffer"
	"github.com/Benedito123/workflow-runner/internal/commands/run/log/linebatch"
	"github.com/Benedito123/workflow-runner/internal/commands/run/shell"
	"github.com/Benedito123/workflow-runner/internal/commands/run/timeline"
	"github.com/Benedito123/workflow-runner/internal/defaults"
	"github.com/Benedito123/workflow-runner/internal/event"
	"github.com/Benedito123/workflow-runner/internal/exprtemplate"
	"github.com/Benedito123/workflow-runner/internal/log/semconv"
	"github.com/Benedito123/workflow-runner/internal/runnerconfig"
	"github.com/Benedito123/workflow-runner/internal/workflow"
)

const (
	tracerName = "github.com/Benedito123/workflow-runner/internal/commands/run/jobrun"
)

type ActionRunner interface {
	Run(ctx context.Context, reference string, inv actions.Invocation, logWriter io.Writer) error
	Known(reference string) bool
}

type Timeline interface {
	EventAddRecord(id, jobID, displayName string, order int)
	EventRecordStarted(id string, startedAt time.Time)
	EventRecordFinished(id string, completedAt time.Time, conclusion timeline.Conclusion)
}

// LineSink receives live log line batches, step by step.
type LineSink interface {
	SendLines(stepID string, lines []string) error
}

type Result struct {
	JobID      string
	Conclusion timeline.Conclusion
	Steps      []StepResult
}

type StepResult struct {
	ID          string
	DisplayName string
	Conclusion  timeline.Conclusion
	Log         string
}

// Runner executes the steps of a single job strictly in declared order.
//
// A failing required step flips the job into a failing state: later steps
// run only if their condition asks for it (always(), failure()), the rest
// are marked skipped. continue-on-error records the failure without
// flipping state.
type Runner struct {
	config    *runnerconfig.Config
	timeline  Timeline
	actions   ActionRunner
	lineSink  LineSink
	tracer    trace.Tracer
	newStepID func() (string, error)
}

func New(config *runnerconfig.Config, tl Timeline, actionRunner ActionRunner, options ...func(*Runner)) *Runner {
	runner := Runner{
		config:   config,
		timeline: tl,
		actions:  actionRunner,
		lineSink: nil,
		tracer:   defaults.TraceProvider.Tracer(tracerName),
		newStepID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", fmt.Errorf("generate step ID: %w", err)
			}

			return id.String(), nil
		},
	}

	for _, apply := range options {
		apply(&runner)
	}

	return &runner
}

func (r *Runner) Run(ctx context.Context, wf *workflow.Workflow, job *workflow.Job, evt *event.Event, runID string) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run job %s", job.ID))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().Str(semconv.JobID, job.ID).Logger()

	result := Result{
		JobID: job.ID,
		Steps: make([]StepResult, 0, len(job.Steps)),
	}

	outcomes := make(map[string]any, len(job.Steps))

	jobFailed := false
	jobCancelled := false

	for index := range job.Steps {
		step := &job.Steps[index]

		if ctx.Err() != nil {
			jobCancelled = true
		}

		stepID := step.ID
		if stepID == "" {
			generated, err := r.newStepID()
			if err != nil {
				return nil, err
			}

			stepID = generated
		}

		evalContext := &exprtemplate.Context{
			Env:          r.documentEnv(wf, job),
			Event:        evt.Payload,
			Job:          map[string]any{"id": job.ID, "name": job.DisplayName()},
			Runner:       map[string]any{"name": r.config.RunnerName, "workspace": r.config.Workspace},
			Steps:        outcomes,
			JobFailed:    jobFailed,
			JobCancelled: jobCancelled,
		}

		shouldRun, err := exprtemplate.EvalCondition(step.If, evalContext)
		if err != nil {
			logger.Error().Err(err).Str(semconv.StepID, stepID).Msg("evaluate step condition")

			jobFailed = true

			r.recordSkipped(stepID, job.ID, step.DisplayName(), index+1, timeline.ConclusionFailure)
			outcomes[stepID] = stepOutcome(timeline.ConclusionFailure)
			result.Steps = append(result.Steps, StepResult{ID: stepID, DisplayName: step.DisplayName(), Conclusion: timeline.ConclusionFailure})

			continue
		}

		if !shouldRun {
			logger.Debug().Str(semconv.StepID, stepID).Msg("step skipped")

			r.recordSkipped(stepID, job.ID, step.DisplayName(), index+1, timeline.ConclusionSkipped)
			outcomes[stepID] = stepOutcome(timeline.ConclusionSkipped)
			result.Steps = append(result.Steps, StepResult{ID: stepID, DisplayName: step.DisplayName(), Conclusion: timeline.ConclusionSkipped})

			continue
		}

		conclusion, logText := r.runStep(ctx, wf, job, step, evt, evalContext, stepID, index+1, runID)

		if conclusion == timeline.ConclusionCancelled {
			jobCancelled = true
		}

		if conclusion == timeline.ConclusionFailure && !step.ContinueOnError {
			jobFailed = true
		}

		outcomes[stepID] = stepOutcome(conclusion)
		result.Steps = append(result.Steps, StepResult{
			ID:          stepID,
			DisplayName: step.DisplayName(),
			Conclusion:  conclusion,
			Log:         logText,
		})
	}

	switch {
	case jobCancelled:
		result.Conclusion = timeline.ConclusionCancelled
	case jobFailed:
		result.Conclusion = timeline.ConclusionFailure
	default:
		result.Conclusion = timeline.ConclusionSuccess
	}

	logger.Info().Str(semconv.Conclusion, string(result.Conclusion)).Msg("job finished")

	return &result, nil
}

func (r *Runner) runStep(
	ctx context.Context,
	wf *workflow.Workflow,
	job *workflow.Job,
	step *workflow.Step,
	evt *event.Event,
	evalContext *exprtemplate.Context,
	stepID string,
	order int,
	runID string,
) (timeline.Conclusion, string) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run step %s", step.DisplayName()), trace.WithAttributes(
		attribute.String(semconv.StepID, stepID),
		attribute.String(semconv.JobID, job.ID),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().Str(semconv.StepID, stepID).Logger()

	r.timeline.EventAddRecord(stepID, job.ID, step.DisplayName(), order)
	r.timeline.EventRecordStarted(stepID, time.Now())

	logBuffer := buffer.NewBuffer()

	logWriter := io.Writer(logBuffer)

	var batchWriter *linebatch.Writer
	if r.lineSink != nil {
		batchWriter = linebatch.NewWriter(func(lines []string) {
			if err := r.lineSink.SendLines(stepID, lines); err != nil {
				logger.Warn().Err(err).Msg("send live log lines")
			}
		})

		logWriter = io.MultiWriter(logBuffer, batchWriter)
	}

	timeoutMinutes := step.TimeoutMinutes
	if timeoutMinutes == 0 {
		timeoutMinutes = job.TimeoutMinutes
	}

	if timeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMinutes)*time.Minute)
		defer cancel()
	}

	err := r.executeStep(ctx, wf, job, step, evt, evalContext, stepID, runID, logWriter)

	conclusion := timeline.ConclusionSuccess

	switch {
	case err != nil && ctx.Err() != nil:
		conclusion = timeline.ConclusionCancelled
		logger.Warn().Err(err).Msg("step cancelled")

	case err != nil:
		conclusion = timeline.ConclusionFailure
		fmt.Fprintf(logWriter, "%s\n", err)
		logger.Error().Err(err).Msg("step failed")
	}

	if batchWriter != nil {
		_ = batchWriter.Close()
	}

	r.timeline.EventRecordFinished(stepID, time.Now(), conclusion)

	return conclusion, logBuffer.String()
}

func (r *Runner) executeStep(
	ctx context.Context,
	wf *workflow.Workflow,
	job *workflow.Job,
	step *workflow.Step,
	evt *event.Event,
	evalContext *exprtemplate.Context,
	stepID string,
	runID string,
	logWriter io.Writer,
) error {
	stepEnv, err := exprtemplate.RenderMap(step.Env, evalContext)
	if err != nil {
		return fmt.Errorf("render step env: %w", err)
	}

	if step.Uses != "" {
		withInputs, err := exprtemplate.RenderMap(step.With, evalContext)
		if err != nil {
			return fmt.Errorf("render step inputs: %w", err)
		}

		if !r.actions.Known(step.Uses) {
			return fmt.Errorf("%w: %q", actions.ErrUnknownAction, step.Uses)
		}

		return r.actions.Run(ctx, step.Uses, actions.Invocation{
			With:        withInputs,
			Workspace:   r.config.Workspace,
			ArtifactDir: r.config.ArtifactDir,
			RunID:       runID,
			Event:       evt,
		}, logWriter)
	}

	script, err := exprtemplate.Render(step.Run, evalContext)
	if err != nil {
		return fmt.Errorf("render run script: %w", err)
	}

	shellName := step.Shell
	if shellName == "" {
		shellName = job.Defaults.Run.Shell
	}
	if shellName == "" {
		shellName = r.config.ShellOrDefault()
	}

	return shell.Run(ctx, shell.Spec{
		Script: script,
		Shell:  shellName,
		Dir:    r.stepDir(job, step),
		Env:    r.processEnv(wf, job, stepEnv, evt, stepID, runID),
	}, logWriter)
}

func (r *Runner) recordSkipped(stepID, jobID, displayName string, order int, conclusion timeline.Conclusion) {
	now := time.Now()

	r.timeline.EventAddRecord(stepID, jobID, displayName, order)
	r.timeline.EventRecordFinished(stepID, now, conclusion)
}

// documentEnv is the env visible to expressions: every layer except the
// process environment.
func (r *Runner) documentEnv(wf *workflow.Workflow, job *workflow.Job) map[string]string {
	env := make(map[string]string)

	for key, value := range r.config.Env {
		env[key] = value
	}

	for key, value := range wf.Env {
		env[key] = value
	}

	for key, value := range job.Env {
		env[key] = value
	}

	return env
}

func (r *Runner) processEnv(wf *workflow.Workflow, job *workflow.Job, stepEnv map[string]string, evt *event.Event, stepID, runID string) []string {
	merged := r.documentEnv(wf, job)

	for key, value := range stepEnv {
		merged[key] = value
	}

	env := os.Environ()

	for key, value := range merged {
		env = append(env, key+"="+value)
	}

	env = append(env,
		"WRUN_EVENT_NAME="+evt.Name,
		"WRUN_REF="+evt.Ref,
		"WRUN_RUN_ID="+runID,
		"WRUN_STEP_ID="+stepID,
		"WRUN_WORKSPACE="+r.config.Workspace,
	)

	return env
}

func (r *Runner) stepDir(job *workflow.Job, step *workflow.Step) string {
	dir := step.WorkingDirectory
	if dir == "" {
		dir = job.Defaults.Run.WorkingDirectory
	}

	if dir == "" {
		return r.config.Workspace
	}

	if filepath.IsAbs(dir) {
		return dir
	}

	return filepath.Join(r.config.Workspace, dir)
}

func WithLineSink(sink LineSink) func(*Runner) {
	return func(r *Runner) {
		r.lineSink = sink
	}
}

func WithNewStepID(newStepID func() (string, error)) func(*Runner) {
	return func(r *Runner) {
		r.newStepID = newStepID
	}
}

func WithTracerProvider(tp trace.TracerProvider) func(*Runner) {
	return func(r *Runner) {
		r.tracer = tp.Tracer(tracerName)
	}
}

func stepOutcome(conclusion timeline.Conclusion) map[string]any {
	return map[string]any{"outcome": string(conclusion)}
}
