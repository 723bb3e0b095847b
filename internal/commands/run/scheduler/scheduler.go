// Package scheduler runs a workflow's jobs, respecting the `needs:`
// graph. Independent jobs run concurrently; a job whose dependency did
// not succeed is skipped without starting.
package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Benedito123/workflow-runner/internal/commands/run/jobrun"
	"github.com/Benedito123/workflow-runner/internal/commands/run/timeline"
	"github.com/Benedito123/workflow-runner/internal/event"
	"github.com/Benedito123/workflow-runner/internal/log/semconv"
	"github.com/Benedito123/workflow-runner/internal/workflow"
)

type JobRunner interface {
	Run(ctx context.Context, wf *workflow.Workflow, job *workflow.Job, evt *event.Event, runID string) (*jobrun.Result, error)
}

type RunResult struct {
	Conclusion timeline.Conclusion

	// Jobs holds one result per workflow job, in declared order.
	Jobs []*jobrun.Result
}

type Scheduler struct {
	runner JobRunner
}

func New(runner JobRunner) *Scheduler {
	return &Scheduler{
		runner: runner,
	}
}

type jobState struct {
	done   chan struct{}
	result *jobrun.Result
}

// Run executes every job of the workflow. Job failures are conclusions,
// not errors: the returned error means the run itself broke (a job could
// not be executed at all).
func (s *Scheduler) Run(ctx context.Context, wf *workflow.Workflow, evt *event.Event, runID string) (*RunResult, error) {
	logger := zerolog.Ctx(ctx)

	states := make(map[string]*jobState, len(wf.Jobs))
	for index := range wf.Jobs {
		states[wf.Jobs[index].ID] = &jobState{
			done: make(chan struct{}),
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for index := range wf.Jobs {
		job := wf.Jobs[index]
		state := states[job.ID]

		group.Go(func() error {
			defer close(state.done)

			for _, need := range job.Needs {
				needState, ok := states[need]
				if !ok {
					return fmt.Errorf("job %q needs unknown job %q", job.ID, need)
				}

				select {
				case <-needState.done:
				case <-groupCtx.Done():
					state.result = skippedResult(job, timeline.ConclusionCancelled)

					return nil
				}

				if needState.result == nil || needState.result.Conclusion != timeline.ConclusionSuccess {
					logger.Info().
						Str(semconv.JobID, job.ID).
						Str("needs", need).
						Msg("dependency did not succeed, skipping job")

					state.result = skippedResult(job, timeline.ConclusionSkipped)

					return nil
				}
			}

			result, err := s.runner.Run(groupCtx, wf, job, evt, runID)
			if err != nil {
				return fmt.Errorf("run job %q: %w", job.ID, err)
			}

			state.result = result

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	runResult := RunResult{
		Conclusion: timeline.ConclusionSuccess,
		Jobs:       make([]*jobrun.Result, 0, len(wf.Jobs)),
	}

	for index := range wf.Jobs {
		result := states[wf.Jobs[index].ID].result
		runResult.Jobs = append(runResult.Jobs, result)

		switch result.Conclusion {
		case timeline.ConclusionCancelled:
			runResult.Conclusion = timeline.ConclusionCancelled

		case timeline.ConclusionFailure, timeline.ConclusionSkipped:
			if runResult.Conclusion != timeline.ConclusionCancelled {
				runResult.Conclusion = timeline.ConclusionFailure
			}
		}
	}

	return &runResult, nil
}

func skippedResult(job *workflow.Job, conclusion timeline.Conclusion) *jobrun.Result {
	return &jobrun.Result{
		JobID:      job.ID,
		Conclusion: conclusion,
	}
}
