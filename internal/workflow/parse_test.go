package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benedito123/workflow-runner/internal/workflow"
)

const pytestWorkflow = `
name: CI
on:
  push:
    branches: [main]
  pull_request:
    branches: [main]
env:
  PYTHON_VERSION: "3.11"
jobs:
  test:
    name: Run tests
    runs-on: ubuntu-latest
    steps:
      - name: Checkout
        uses: actions/checkout@v4
      - name: Install dependencies
        run: pip install -r requirements.txt
      - name: Install optional dependencies
        run: pip install -r requirements-optional.txt
      - name: Install project
        run: pip install -e .
      - name: Run tests
        run: pytest --cov=. --cov-report=xml tests/
      - name: Upload coverage
        uses: codecov/codecov-action@v4
        with:
          file: coverage.xml
`

func TestParse(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		wf, err := workflow.Parse([]byte(pytestWorkflow))
		require.NoError(t, err)

		assert.Equal(t, "CI", wf.Name)
		assert.Equal(t, "3.11", wf.Env["PYTHON_VERSION"])

		require.Len(t, wf.On.Events, 2)
		push, ok := wf.On.Event("push")
		require.True(t, ok)
		assert.Equal(t, workflow.StringList{"main"}, push.Branches)

		require.Len(t, wf.Jobs, 1)
		job := wf.Jobs.Get("test")
		require.NotNil(t, job)
		assert.Equal(t, "Run tests", job.DisplayName())

		// declared order must be preserved verbatim
		assert.Equal(t, []string{
			"Checkout",
			"Install dependencies",
			"Install optional dependencies",
			"Install project",
			"Run tests",
			"Upload coverage",
		}, job.StepOrder())
	})

	t.Run("scalar trigger", func(t *testing.T) {
		wf, err := workflow.Parse([]byte("on: push\njobs:\n  a:\n    steps:\n      - run: \"true\"\n"))
		require.NoError(t, err)

		require.Len(t, wf.On.Events, 1)
		assert.Equal(t, "push", wf.On.Events[0].Name)
	})

	t.Run("sequence trigger", func(t *testing.T) {
		wf, err := workflow.Parse([]byte("on: [push, pull_request]\njobs:\n  a:\n    steps:\n      - run: \"true\"\n"))
		require.NoError(t, err)

		require.Len(t, wf.On.Events, 2)
		assert.Equal(t, "pull_request", wf.On.Events[1].Name)
	})

	t.Run("trigger with nil filters", func(t *testing.T) {
		wf, err := workflow.Parse([]byte("on:\n  push:\n  pull_request:\n    branches: [dev]\njobs:\n  a:\n    steps:\n      - run: \"true\"\n"))
		require.NoError(t, err)

		push, ok := wf.On.Event("push")
		require.True(t, ok)
		assert.Empty(t, push.Branches)
	})

	t.Run("job order is preserved", func(t *testing.T) {
		wf, err := workflow.Parse([]byte(`
on: push
jobs:
  zeta:
    steps: [{run: "true"}]
  alpha:
    steps: [{run: "true"}]
  mid:
    steps: [{run: "true"}]
`))
		require.NoError(t, err)

		ids := make([]string, 0, len(wf.Jobs))
		for _, job := range wf.Jobs {
			ids = append(ids, job.ID)
		}

		assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids)
	})

	t.Run("scalar needs", func(t *testing.T) {
		wf, err := workflow.Parse([]byte(`
on: push
jobs:
  build:
    steps: [{run: "true"}]
  test:
    needs: build
    steps: [{run: "true"}]
`))
		require.NoError(t, err)

		assert.Equal(t, workflow.StringList{"build"}, wf.Jobs.Get("test").Needs)
	})
}

func TestValidate(t *testing.T) {
	t.Run("no triggers", func(t *testing.T) {
		_, err := workflow.Parse([]byte("jobs:\n  a:\n    steps:\n      - run: \"true\"\n"))
		assert.ErrorIs(t, err, workflow.ErrNoTriggers)
	})

	t.Run("no jobs", func(t *testing.T) {
		_, err := workflow.Parse([]byte("on: push\n"))
		assert.ErrorIs(t, err, workflow.ErrNoJobs)
	})

	t.Run("no steps", func(t *testing.T) {
		_, err := workflow.Parse([]byte("on: push\njobs:\n  a: {}\n"))
		assert.ErrorIs(t, err, workflow.ErrNoSteps)
	})

	t.Run("run and uses together", func(t *testing.T) {
		_, err := workflow.Parse([]byte("on: push\njobs:\n  a:\n    steps:\n      - run: \"true\"\n        uses: actions/checkout@v4\n"))
		assert.ErrorIs(t, err, workflow.ErrAmbiguousStep)
	})

	t.Run("neither run nor uses", func(t *testing.T) {
		_, err := workflow.Parse([]byte("on: push\njobs:\n  a:\n    steps:\n      - name: empty\n"))
		assert.ErrorIs(t, err, workflow.ErrEmptyStep)
	})

	t.Run("unknown need", func(t *testing.T) {
		_, err := workflow.Parse([]byte("on: push\njobs:\n  a:\n    needs: [ghost]\n    steps:\n      - run: \"true\"\n"))
		assert.ErrorIs(t, err, workflow.ErrUnknownNeed)
	})

	t.Run("needs cycle", func(t *testing.T) {
		_, err := workflow.Parse([]byte(`
on: push
jobs:
  a:
    needs: [b]
    steps: [{run: "true"}]
  b:
    needs: [a]
    steps: [{run: "true"}]
`))
		assert.ErrorIs(t, err, workflow.ErrNeedsCycle)
	})

	t.Run("duplicate step id", func(t *testing.T) {
		_, err := workflow.Parse([]byte(`
on: push
jobs:
  a:
    steps:
      - id: x
        run: "true"
      - id: x
        run: "false"
`))
		assert.ErrorIs(t, err, workflow.ErrDuplicateStepID)
	})
}

func TestStepDisplayName(t *testing.T) {
	t.Run("explicit name", func(t *testing.T) {
		step := workflow.Step{Name: "Build", Run: "make"}
		assert.Equal(t, "Build", step.DisplayName())
	})

	t.Run("uses reference", func(t *testing.T) {
		step := workflow.Step{Uses: "actions/checkout@v4"}
		assert.Equal(t, "actions/checkout@v4", step.DisplayName())
	})

	t.Run("first line of run script", func(t *testing.T) {
		step := workflow.Step{Run: "make build\nmake test\n"}
		assert.Equal(t, "make build", step.DisplayName())
	})
}
