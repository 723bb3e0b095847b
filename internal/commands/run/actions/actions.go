// Package actions implements the built-in `uses:` steps the runner
// supports. References resolve by owner/name; the version tag is accepted
// for compatibility with hosted workflow files but does not select an
// implementation.
package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Benedito123/workflow-runner/internal/defaults"
	"github.com/Benedito123/workflow-runner/internal/event"
	"github.com/Benedito123/workflow-runner/internal/repository/coverage"
)

const (
	tracerName = "github.com/Benedito123/workflow-runner/internal/commands/run/actions"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingInput  = errors.New("missing required input")
)

// Invocation carries everything a built-in action may need.
type Invocation struct {
	With        map[string]string
	Workspace   string
	ArtifactDir string
	RunID       string
	Event       *event.Event
}

func (i *Invocation) input(name string) string {
	return i.With[name]
}

func (i *Invocation) requiredInput(name string) (string, error) {
	value := i.With[name]
	if value == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingInput, name)
	}

	return value, nil
}

type action interface {
	Run(ctx context.Context, inv Invocation, logWriter io.Writer) error
}

// Registry resolves and runs built-in actions.
type Registry struct {
	actions map[string]action
	tracer  trace.Tracer
}

func NewRegistry(options ...func(*Registry)) *Registry {
	registry := Registry{
		actions: map[string]action{
			"actions/checkout":        &checkoutAction{},
			"actions/upload-artifact": &uploadArtifactAction{},
		},
		tracer: defaults.TraceProvider.Tracer(tracerName),
	}

	for _, apply := range options {
		apply(&registry)
	}

	return &registry
}

// Run dispatches a `uses:` reference like "actions/checkout@v4".
func (r *Registry) Run(ctx context.Context, reference string, inv Invocation, logWriter io.Writer) error {
	key, _, _ := strings.Cut(reference, "@")

	impl, ok := r.actions[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, reference)
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("action %s", key))
	defer span.End()

	if err := impl.Run(ctx, inv, logWriter); err != nil {
		return fmt.Errorf("action %q: %w", key, err)
	}

	return nil
}

// Known reports whether a reference resolves to a built-in.
func (r *Registry) Known(reference string) bool {
	key, _, _ := strings.Cut(reference, "@")

	_, ok := r.actions[key]

	return ok
}

// WithCoverageClient registers the codecov/codecov-action built-in backed
// by the given upload client.
func WithCoverageClient(client *coverage.Repository) func(*Registry) {
	return func(r *Registry) {
		r.actions["codecov/codecov-action"] = &coverageUploadAction{client: client}
	}
}

func WithTracerProvider(tp trace.TracerProvider) func(*Registry) {
	return func(r *Registry) {
		r.tracer = tp.Tracer(tracerName)
	}
}
