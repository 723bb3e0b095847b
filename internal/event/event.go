package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-github/v69/github"
)

const (
	NamePush             = "push"
	NamePullRequest      = "pull_request"
	NameWorkflowDispatch = "workflow_dispatch"
)

var ErrUnknownEvent = errors.New("unknown event name")

// Event is the occurrence that may fire a workflow: an event name plus the
// ref and changed paths extracted from its payload.
type Event struct {
	Name         string
	Ref          string
	ChangedPaths []string

	// raw payload, exposed to expressions as `event`
	Payload map[string]any
}

// New synthesizes an event from an event name and a git ref, without a
// payload file.
func New(name, ref string) (*Event, error) {
	switch name {
	case NamePush, NamePullRequest, NameWorkflowDispatch:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	return &Event{
		Name:    name,
		Ref:     ref,
		Payload: map[string]any{"ref": ref},
	}, nil
}

// ReadPayloadFile loads an event from a webhook payload file, the same JSON
// documents GitHub delivers for push and pull_request hooks.
func ReadPayloadFile(name, path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event payload file: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}

	evt := Event{
		Name:    name,
		Payload: payload,
	}

	switch name {
	case NamePush:
		var push github.PushEvent
		if err := json.Unmarshal(data, &push); err != nil {
			return nil, fmt.Errorf("unmarshal push event: %w", err)
		}

		evt.Ref = push.GetRef()

		for _, commit := range push.Commits {
			evt.ChangedPaths = append(evt.ChangedPaths, commit.Added...)
			evt.ChangedPaths = append(evt.ChangedPaths, commit.Modified...)
			evt.ChangedPaths = append(evt.ChangedPaths, commit.Removed...)
		}

	case NamePullRequest:
		var pr github.PullRequestEvent
		if err := json.Unmarshal(data, &pr); err != nil {
			return nil, fmt.Errorf("unmarshal pull_request event: %w", err)
		}

		// trigger filters match the target branch of the pull request
		evt.Ref = "refs/heads/" + pr.GetPullRequest().GetBase().GetRef()

	case NameWorkflowDispatch:
		if ref, ok := payload["ref"].(string); ok {
			evt.Ref = ref
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	return &evt, nil
}

// Branch returns the branch name for refs/heads refs, empty otherwise.
func (e *Event) Branch() string {
	if name, ok := strings.CutPrefix(e.Ref, "refs/heads/"); ok {
		return name
	}

	return ""
}

// Tag returns the tag name for refs/tags refs, empty otherwise.
func (e *Event) Tag() string {
	if name, ok := strings.CutPrefix(e.Ref, "refs/tags/"); ok {
		return name
	}

	return ""
}

// ShortRef strips the refs/heads or refs/tags prefix.
func (e *Event) ShortRef() string {
	if branch := e.Branch(); branch != "" {
		return branch
	}

	if tag := e.Tag(); tag != "" {
		return tag
	}

	return e.Ref
}
