package semconv

// Run
const (
	// Unique ID for a single `wrun run` invocation.
	RunID = "run_id"

	// Name of the workflow as declared in the YAML document.
	WorkflowName = "workflow_name"
)

// Event
const (
	// Name of the event that fired the run (push, pull_request, ...).
	EventName = "event_name"

	// Full git ref carried by the event.
	EventRef = "event_ref"
)

// Job & Step
const (
	// Key of the job in the `jobs` mapping.
	JobID = "job_id"

	// Stable ID for the step. Steps without an explicit `id` get a
	// generated one, unique per run.
	StepID = "step_id"

	// Conclusion of a finished step (success, failure, skipped, cancelled).
	Conclusion = "conclusion"
)
