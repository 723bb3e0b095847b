package timeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Benedito123/workflow-runner/internal/util/timeutil"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Conclusion string

const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionSkipped   Conclusion = "skipped"
	ConclusionCancelled Conclusion = "cancelled"
)

// Record tracks one step (or job) through its lifecycle.
type Record struct {
	ID          string
	JobID       string
	Order       int
	DisplayName string
	Status      Status
	Conclusion  Conclusion
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Reporter receives batches of dirty records on an interval. changeID
// grows monotonically per batch.
type Reporter interface {
	ReportRecords(ctx context.Context, changeID int, records []Record) error
}

type event any

type (
	eventAddRecord struct {
		ID          string
		JobID       string
		Order       int
		DisplayName string
	}

	eventRecordStarted struct {
		ID        string
		StartedAt time.Time
	}

	eventRecordFinished struct {
		ID          string
		Conclusion  Conclusion
		CompletedAt time.Time
	}
)

// Controller folds record lifecycle events into state and flushes dirty
// records to the Reporter on a ticker, with one final flush on shutdown.
type Controller struct {
	reporter     Reporter
	nextChangeID int
	mu           sync.Mutex
	wg           sync.WaitGroup
	shutdown     context.CancelFunc
	eventsChan   chan event
	state        []Record
	pendingSync  map[string]struct{}
	newTicker    timeutil.NewTickerFunc

	hookEventProcessed chan<- struct{}
}

func NewController(reporter Reporter, options ...func(*Controller)) *Controller {
	ctrl := Controller{
		reporter:           reporter,
		mu:                 sync.Mutex{},
		wg:                 sync.WaitGroup{},
		state:              make([]Record, 0),
		eventsChan:         make(chan event),
		pendingSync:        make(map[string]struct{}),
		shutdown:           nil,
		newTicker:          timeutil.Generic(timeutil.NewTicker),
		hookEventProcessed: nil,
	}

	for _, apply := range options {
		apply(&ctrl)
	}

	return &ctrl
}

func (c *Controller) EventAddRecord(id, jobID, displayName string, order int) {
	c.eventsChan <- eventAddRecord{
		ID:          id,
		JobID:       jobID,
		Order:       order,
		DisplayName: displayName,
	}
}

func (c *Controller) EventRecordStarted(id string, startedAt time.Time) {
	c.eventsChan <- eventRecordStarted{
		ID:        id,
		StartedAt: startedAt,
	}
}

func (c *Controller) EventRecordFinished(id string, completedAt time.Time, conclusion Conclusion) {
	c.eventsChan <- eventRecordFinished{
		ID:          id,
		Conclusion:  conclusion,
		CompletedAt: completedAt,
	}
}

// Records returns a snapshot of all records in add order.
func (c *Controller) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.state)
}

func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// sync worker must exit after the events worker to ensure all events
	// have been flushed, so it gets a context detached from the caller's
	eventsCtx, eventsCancel := context.WithCancel(ctx)
	syncCtx, syncCancel := context.WithCancel(context.WithoutCancel(ctx))

	// for Shutdown method
	c.shutdown = eventsCancel

	c.wg.Add(1)
	go c.workerEvents(eventsCtx, syncCancel)

	c.wg.Add(1)
	go c.workerSync(syncCtx)
}

func (c *Controller) Shutdown(_ context.Context) error {
	c.shutdown()

	c.wg.Wait()

	return nil
}

func (c *Controller) doSync(ctx context.Context) error {
	c.mu.Lock()
	if len(c.pendingSync) == 0 {
		c.mu.Unlock()
		return nil
	}

	ids := make([]string, 0, len(c.pendingSync))
	for id := range c.pendingSync {
		ids = append(ids, id)
	}

	c.pendingSync = make(map[string]struct{})

	records := make([]Record, 0, len(ids))
	for _, record := range c.state {
		if !slices.Contains(ids, record.ID) {
			continue
		}

		records = append(records, record)
	}

	c.nextChangeID++
	nextChangeID := c.nextChangeID
	c.mu.Unlock()

	if err := c.reporter.ReportRecords(ctx, nextChangeID, records); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()

		// mark all items as needing sync again
		for _, id := range ids {
			c.pendingSync[id] = struct{}{}
		}

		return fmt.Errorf("report records: %w", err)
	}

	return nil
}

func (c *Controller) handleEvent(evt event) {
	// for testing
	if c.hookEventProcessed != nil {
		defer func() {
			c.hookEventProcessed <- struct{}{}
		}()
	}

	switch evt := evt.(type) {
	case eventAddRecord:
		record := Record{
			ID:          evt.ID,
			JobID:       evt.JobID,
			Order:       evt.Order,
			DisplayName: evt.DisplayName,
			Status:      StatusPending,
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		c.state = append(c.state, record)
		c.pendingSync[evt.ID] = struct{}{}

	case eventRecordStarted:
		c.updateRecord(evt.ID, func(record Record) Record {
			record.Status = StatusInProgress
			record.StartedAt = &evt.StartedAt

			return record
		})

	case eventRecordFinished:
		c.updateRecord(evt.ID, func(record Record) Record {
			record.Status = StatusCompleted
			record.Conclusion = evt.Conclusion
			record.CompletedAt = &evt.CompletedAt

			return record
		})
	}
}

func (c *Controller) updateRecord(id string, callback func(record Record) Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := slices.IndexFunc(c.state, recordWithID(id))
	if index == -1 {
		return
	}

	c.state[index] = callback(c.state[index])
	c.pendingSync[id] = struct{}{}
}

func (c *Controller) workerEvents(ctx context.Context, done func()) {
	defer c.wg.Done()
	defer done()

	for {
		select {
		case <-ctx.Done():
			return

		case evt := <-c.eventsChan:
			c.handleEvent(evt)
		}
	}
}

func (c *Controller) workerSync(ctx context.Context) {
	defer c.wg.Done()

	ticker := c.newTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// one more sync before exiting, on a clean context
			ctx := context.WithoutCancel(ctx)

			_ = c.doSync(ctx)

			return

		case <-ticker.Chan():
			_ = c.doSync(ctx)
		}
	}
}

func recordWithID(id string) func(Record) bool {
	return func(record Record) bool {
		return record.ID == id
	}
}

func WithHookEventProcessed(ch chan<- struct{}) func(*Controller) {
	return func(c *Controller) {
		c.hookEventProcessed = ch
	}
}

func WithNewTickerFunc[T timeutil.Ticker](newTicker func(d time.Duration) T) func(*Controller) {
	return func(c *Controller) {
		c.newTicker = timeutil.Generic(newTicker)
	}
}
