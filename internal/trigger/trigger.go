package trigger

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/Benedito123/workflow-runner/internal/event"
	"github.com/Benedito123/workflow-runner/internal/workflow"
)

// Decision explains why a workflow does or does not fire for an event.
type Decision struct {
	Matched bool
	Reason  string
}

func matched(reason string, args ...any) Decision {
	return Decision{Matched: true, Reason: fmt.Sprintf(reason, args...)}
}

func notMatched(reason string, args ...any) Decision {
	return Decision{Matched: false, Reason: fmt.Sprintf(reason, args...)}
}

// Match decides whether an event fires the workflow's `on:` triggers.
//
// Filter semantics: absent filters match everything, ignore filters win
// over allow filters, patterns are glob compiled (`release/*`, `v*`).
func Match(on workflow.Triggers, evt *event.Event) (Decision, error) {
	trigger, declared := on.Event(evt.Name)
	if !declared {
		return notMatched("event %q is not listed in `on`", evt.Name), nil
	}

	if branch := evt.Branch(); branch != "" {
		if decision, err := matchRef("branch", branch, trigger.Branches, trigger.BranchesIgnore); err != nil || !decision.Matched {
			return decision, err
		}
	}

	if tag := evt.Tag(); tag != "" {
		if len(trigger.Tags) > 0 {
			ok, pattern, err := anyMatch(trigger.Tags, tag)
			if err != nil {
				return Decision{}, err
			}

			if !ok {
				return notMatched("tag %q matches no pattern in `tags`", tag), nil
			}

			return matched("tag %q matches %q", tag, pattern), nil
		}
	}

	if len(trigger.Paths) > 0 {
		ok, pattern, err := anyPathMatch(trigger.Paths, evt.ChangedPaths)
		if err != nil {
			return Decision{}, err
		}

		if !ok {
			return notMatched("no changed path matches `paths`"), nil
		}

		return matched("changed path matches %q", pattern), nil
	}

	return matched("event %q is listed in `on`", evt.Name), nil
}

func matchRef(kind, name string, allow, ignore workflow.StringList) (Decision, error) {
	if len(ignore) > 0 {
		ok, pattern, err := anyMatch(ignore, name)
		if err != nil {
			return Decision{}, err
		}

		if ok {
			return notMatched("%s %q matches ignore pattern %q", kind, name, pattern), nil
		}
	}

	if len(allow) > 0 {
		ok, pattern, err := anyMatch(allow, name)
		if err != nil {
			return Decision{}, err
		}

		if !ok {
			return notMatched("%s %q matches no pattern in `%ses`", kind, name, kind), nil
		}

		return matched("%s %q matches %q", kind, name, pattern), nil
	}

	return matched("%s %q accepted, no filters declared", kind, name), nil
}

func anyMatch(patterns workflow.StringList, value string) (bool, string, error) {
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return false, "", fmt.Errorf("compile pattern %q: %w", pattern, err)
		}

		if g.Match(value) {
			return true, pattern, nil
		}
	}

	return false, "", nil
}

func anyPathMatch(patterns workflow.StringList, paths []string) (bool, string, error) {
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return false, "", fmt.Errorf("compile pattern %q: %w", pattern, err)
		}

		for _, path := range paths {
			if g.Match(path) {
				return true, pattern, nil
			}
		}
	}

	return false, "", nil
}
