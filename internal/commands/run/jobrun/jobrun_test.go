package jobrun_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benedito123/workflow-runner/internal/commands/run/actions"
	"github.com/Benedito123/workflow-runner/internal/commands/run/jobrun"
	"github.com/Benedito123/workflow-runner/internal/commands/run/timeline"
	"github.com/Benedito123/workflow-runner/internal/event"
	"github.com/Benedito123/workflow-runner/internal/runnerconfig"
	"github.com/Benedito123/workflow-runner/internal/workflow"
)

type timelineEvent struct {
	kind       string
	id         string
	conclusion timeline.Conclusion
}

type fakeTimeline struct {
	events []timelineEvent
}

func (f *fakeTimeline) EventAddRecord(id, jobID, displayName string, order int) {
	f.events = append(f.events, timelineEvent{kind: "add", id: id})
}

func (f *fakeTimeline) EventRecordStarted(id string, startedAt time.Time) {
	f.events = append(f.events, timelineEvent{kind: "started", id: id})
}

func (f *fakeTimeline) EventRecordFinished(id string, completedAt time.Time, conclusion timeline.Conclusion) {
	f.events = append(f.events, timelineEvent{kind: "finished", id: id, conclusion: conclusion})
}

func (f *fakeTimeline) finished(id string) (timeline.Conclusion, bool) {
	for _, evt := range f.events {
		if evt.kind == "finished" && evt.id == id {
			return evt.conclusion, true
		}
	}

	return "", false
}

type actionCall struct {
	reference string
	with      map[string]string
}

type fakeActions struct {
	calls []actionCall
	err   error
}

func (f *fakeActions) Run(_ context.Context, reference string, inv actions.Invocation, _ io.Writer) error {
	f.calls = append(f.calls, actionCall{reference: reference, with: inv.With})

	return f.err
}

func (f *fakeActions) Known(string) bool {
	return true
}

func newRunner(t *testing.T, tl *fakeTimeline, acts *fakeActions) *jobrun.Runner {
	t.Helper()

	config := &runnerconfig.Config{
		RunnerName: "test-runner",
		Workspace:  t.TempDir(),
		Env:        map[string]string{"RUNNER_LEVEL": "config"},
	}

	sequence := 0

	return jobrun.New(config, tl, acts, jobrun.WithNewStepID(func() (string, error) {
		sequence++

		return fmt.Sprintf("step-%d", sequence), nil
	}))
}

func parseJob(t *testing.T, document string) (*workflow.Workflow, *workflow.Job) {
	t.Helper()

	wf, err := workflow.Parse([]byte(document))
	require.NoError(t, err)
	require.Len(t, wf.Jobs, 1)

	return wf, wf.Jobs[0]
}

func pushEvent(t *testing.T) *event.Event {
	t.Helper()

	evt, err := event.New(event.NamePush, "refs/heads/main")
	require.NoError(t, err)

	return evt
}

func TestRunSuccess(t *testing.T) {
	wf, job := parseJob(t, `
name: ci
on: push
env:
  GREETING: hello
jobs:
  build:
    steps:
      - id: first
        run: echo "${{ env.GREETING }} world"
      - run: echo "previous was ${{ steps.first.outcome }}"
`)

	tl := &fakeTimeline{}
	runner := newRunner(t, tl, &fakeActions{})

	result, err := runner.Run(context.Background(), wf, job, pushEvent(t), "run-1")
	require.NoError(t, err)

	assert.Equal(t, timeline.ConclusionSuccess, result.Conclusion)
	require.Len(t, result.Steps, 2)

	assert.Equal(t, "first", result.Steps[0].ID)
	assert.Equal(t, "hello world\n", result.Steps[0].Log)
	assert.Equal(t, "previous was success\n", result.Steps[1].Log)

	conclusion, ok := tl.finished("first")
	require.True(t, ok)
	assert.Equal(t, timeline.ConclusionSuccess, conclusion)
}

func TestRunAbortsOnFailure(t *testing.T) {
	wf, job := parseJob(t, `
name: ci
on: push
jobs:
  build:
    steps:
      - id: breaks
        run: exit 1
      - id: regular
        run: echo unreachable
      - id: cleanup
        if: always()
        run: echo cleanup
      - id: on-failure
        if: failure()
        run: echo failed
`)

	tl := &fakeTimeline{}
	runner := newRunner(t, tl, &fakeActions{})

	result, err := runner.Run(context.Background(), wf, job, pushEvent(t), "run-1")
	require.NoError(t, err)

	assert.Equal(t, timeline.ConclusionFailure, result.Conclusion)
	require.Len(t, result.Steps, 4)

	assert.Equal(t, timeline.ConclusionFailure, result.Steps[0].Conclusion)
	assert.Equal(t, timeline.ConclusionSkipped, result.Steps[1].Conclusion)
	assert.Equal(t, timeline.ConclusionSuccess, result.Steps[2].Conclusion)
	assert.Equal(t, "cleanup\n", result.Steps[2].Log)
	assert.Equal(t, timeline.ConclusionSuccess, result.Steps[3].Conclusion)
	assert.Equal(t, "failed\n", result.Steps[3].Log)

	conclusion, ok := tl.finished("regular")
	require.True(t, ok)
	assert.Equal(t, timeline.ConclusionSkipped, conclusion)
}

func TestRunContinueOnError(t *testing.T) {
	wf, job := parseJob(t, `
name: ci
on: push
jobs:
  build:
    steps:
      - id: flaky
        run: exit 1
        continue-on-error: true
      - id: after
        run: echo still here
`)

	tl := &fakeTimeline{}
	runner := newRunner(t, tl, &fakeActions{})

	result, err := runner.Run(context.Background(), wf, job, pushEvent(t), "run-1")
	require.NoError(t, err)

	assert.Equal(t, timeline.ConclusionSuccess, result.Conclusion)
	assert.Equal(t, timeline.ConclusionFailure, result.Steps[0].Conclusion)
	assert.Equal(t, timeline.ConclusionSuccess, result.Steps[1].Conclusion)
	assert.Equal(t, "still here\n", result.Steps[1].Log)
}

func TestRunUsesAction(t *testing.T) {
	wf, job := parseJob(t, `
name: ci
on: push
jobs:
  build:
    steps:
      - uses: actions/checkout@v4
        with:
          ref: "${{ event.ref }}"
`)

	tl := &fakeTimeline{}
	acts := &fakeActions{}
	runner := newRunner(t, tl, acts)

	result, err := runner.Run(context.Background(), wf, job, pushEvent(t), "run-1")
	require.NoError(t, err)

	assert.Equal(t, timeline.ConclusionSuccess, result.Conclusion)

	require.Len(t, acts.calls, 1)
	assert.Equal(t, "actions/checkout@v4", acts.calls[0].reference)
	assert.Equal(t, "refs/heads/main", acts.calls[0].with["ref"])
}

func TestRunCancelled(t *testing.T) {
	wf, job := parseJob(t, `
name: ci
on: push
jobs:
  build:
    steps:
      - run: echo never runs
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tl := &fakeTimeline{}
	runner := newRunner(t, tl, &fakeActions{})

	result, err := runner.Run(ctx, wf, job, pushEvent(t), "run-1")
	require.NoError(t, err)

	assert.Equal(t, timeline.ConclusionCancelled, result.Conclusion)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, timeline.ConclusionSkipped, result.Steps[0].Conclusion)
}

func TestRunEnvLayering(t *testing.T) {
	wf, job := parseJob(t, `
name: ci
on: push
env:
  SHARED: workflow
jobs:
  build:
    env:
      SHARED: job
    steps:
      - run: echo "$SHARED $RUNNER_LEVEL $WRUN_EVENT_NAME"
        env:
          RUNNER_LEVEL: step
`)

	tl := &fakeTimeline{}
	runner := newRunner(t, tl, &fakeActions{})

	result, err := runner.Run(context.Background(), wf, job, pushEvent(t), "run-1")
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Equal(t, "job step push\n", result.Steps[0].Log)
}
