package timeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benedito123/workflow-runner/internal/commands/run/timeline"
	"github.com/Benedito123/workflow-runner/internal/util/timeutil"
)

type fakeReporter struct {
	mu       sync.Mutex
	err      error
	attempts int
	batches  [][]timeline.Record
}

func (f *fakeReporter) ReportRecords(_ context.Context, _ int, records []timeline.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++

	if f.err != nil {
		return f.err
	}

	f.batches = append(f.batches, records)

	return nil
}

func (f *fakeReporter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.batches)
}

func (f *fakeReporter) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attempts
}

func (f *fakeReporter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

func TestController(t *testing.T) {
	t.Run("start & shutdown", func(t *testing.T) {
		t.Run("with empty queue", func(t *testing.T) {
			reporter := fakeReporter{}

			ctrl := timeline.NewController(&reporter)

			ctrl.Start(context.Background())

			err := ctrl.Shutdown(context.Background())
			require.NoError(t, err)

			assert.Zero(t, reporter.callCount())
		})

		t.Run("with pending records", func(t *testing.T) {
			reporter := fakeReporter{}
			hook := make(chan struct{}, 3)

			ctrl := timeline.NewController(
				&reporter,
				timeline.WithNewTickerFunc(timeutil.WrapFakeTicker(timeutil.NewFakeTicker())),
				timeline.WithHookEventProcessed(hook),
			)

			ctrl.Start(context.Background())

			ctrl.EventAddRecord("step1", "test", "Checkout", 1)
			ctrl.EventAddRecord("step2", "test", "Run tests", 2)
			<-hook
			<-hook

			err := ctrl.Shutdown(context.Background())
			require.NoError(t, err)

			// final flush on shutdown
			require.Equal(t, 1, reporter.callCount())
			assert.Len(t, reporter.batches[0], 2)
		})
	})

	t.Run("syncs on tick", func(t *testing.T) {
		reporter := fakeReporter{}
		ticker := timeutil.NewFakeTicker()
		hook := make(chan struct{}, 1)

		ctrl := timeline.NewController(
			&reporter,
			timeline.WithNewTickerFunc(timeutil.WrapFakeTicker(ticker)),
			timeline.WithHookEventProcessed(hook),
		)

		ctrl.Start(context.Background())

		ctrl.EventAddRecord("step1", "test", "Checkout", 1)
		<-hook

		ticker.Tick()

		require.Eventually(t, func() bool {
			return reporter.callCount() == 1
		}, time.Second, 5*time.Millisecond)

		err := ctrl.Shutdown(context.Background())
		require.NoError(t, err)

		// nothing dirty, no extra batch
		assert.Equal(t, 1, reporter.callCount())
	})

	t.Run("record lifecycle", func(t *testing.T) {
		reporter := fakeReporter{}
		hook := make(chan struct{}, 4)

		ctrl := timeline.NewController(
			&reporter,
			timeline.WithNewTickerFunc(timeutil.WrapFakeTicker(timeutil.NewFakeTicker())),
			timeline.WithHookEventProcessed(hook),
		)

		ctrl.Start(context.Background())

		startedAt := time.Now()
		completedAt := startedAt.Add(3 * time.Second)

		ctrl.EventAddRecord("step1", "test", "Run tests", 1)
		<-hook
		ctrl.EventRecordStarted("step1", startedAt)
		<-hook
		ctrl.EventRecordFinished("step1", completedAt, timeline.ConclusionFailure)
		<-hook

		records := ctrl.Records()
		require.Len(t, records, 1)

		record := records[0]
		assert.Equal(t, "step1", record.ID)
		assert.Equal(t, "test", record.JobID)
		assert.Equal(t, timeline.StatusCompleted, record.Status)
		assert.Equal(t, timeline.ConclusionFailure, record.Conclusion)
		require.NotNil(t, record.StartedAt)
		require.NotNil(t, record.CompletedAt)
		assert.Equal(t, 3*time.Second, record.CompletedAt.Sub(*record.StartedAt))

		require.NoError(t, ctrl.Shutdown(context.Background()))
	})

	t.Run("failed report is retried on next tick", func(t *testing.T) {
		reporter := fakeReporter{err: assert.AnError}
		ticker := timeutil.NewFakeTicker()
		hook := make(chan struct{}, 1)

		ctrl := timeline.NewController(
			&reporter,
			timeline.WithNewTickerFunc(timeutil.WrapFakeTicker(ticker)),
			timeline.WithHookEventProcessed(hook),
		)

		ctrl.Start(context.Background())

		ctrl.EventAddRecord("step1", "test", "Checkout", 1)
		<-hook

		ticker.Tick()

		// let the failing sync happen, then heal the reporter
		require.Eventually(t, func() bool {
			return reporter.attemptCount() >= 1
		}, time.Second, 5*time.Millisecond)

		reporter.setErr(nil)

		require.NoError(t, ctrl.Shutdown(context.Background()))

		// the record was kept dirty and flushed on shutdown
		require.Equal(t, 1, reporter.callCount())
		assert.Equal(t, "step1", reporter.batches[0][0].ID)
	})
}
