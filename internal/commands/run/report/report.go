package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Benedito123/workflow-runner/internal/commands/run/timeline"
	"github.com/Benedito123/workflow-runner/internal/log/semconv"
)

// ConsoleReporter logs record transitions as they are flushed from the
// timeline controller.
type ConsoleReporter struct {
	logger zerolog.Logger
}

func NewConsoleReporter(logger zerolog.Logger) *ConsoleReporter {
	return &ConsoleReporter{
		logger: logger,
	}
}

func (r *ConsoleReporter) ReportRecords(_ context.Context, _ int, records []timeline.Record) error {
	for _, record := range records {
		logEvent := r.logger.Info().
			Str(semconv.JobID, record.JobID).
			Str(semconv.StepID, record.ID).
			Str("status", string(record.Status))

		if record.Status == timeline.StatusCompleted {
			logEvent = logEvent.Str(semconv.Conclusion, string(record.Conclusion))
		}

		logEvent.Msg(record.DisplayName)
	}

	return nil
}

// Summary is the run report written after a run completes: overall
// conclusion plus per-step outcomes in execution order.
type Summary struct {
	RunID       string        `json:"runId"`
	Workflow    string        `json:"workflow"`
	EventName   string        `json:"eventName"`
	Ref         string        `json:"ref"`
	Conclusion  string        `json:"conclusion"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Steps       []SummaryStep `json:"steps"`
}

type SummaryStep struct {
	ID          string  `json:"id"`
	JobID       string  `json:"jobId"`
	Name        string  `json:"name"`
	Conclusion  string  `json:"conclusion"`
	DurationSec float64 `json:"durationSec"`
}

func BuildSummary(runID, workflowName, eventName, ref string, conclusion timeline.Conclusion, startedAt, completedAt time.Time, records []timeline.Record) *Summary {
	summary := Summary{
		RunID:       runID,
		Workflow:    workflowName,
		EventName:   eventName,
		Ref:         ref,
		Conclusion:  string(conclusion),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Steps:       make([]SummaryStep, 0, len(records)),
	}

	for _, record := range records {
		step := SummaryStep{
			ID:         record.ID,
			JobID:      record.JobID,
			Name:       record.DisplayName,
			Conclusion: string(record.Conclusion),
		}

		if record.StartedAt != nil && record.CompletedAt != nil {
			step.DurationSec = record.CompletedAt.Sub(*record.StartedAt).Seconds()
		}

		summary.Steps = append(summary.Steps, step)
	}

	return &summary
}

func (s *Summary) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save run report: %w", err)
	}

	return nil
}
