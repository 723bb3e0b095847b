package workflow

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoJobs          = errors.New("workflow has no jobs")
	ErrNoSteps         = errors.New("job has no steps")
	ErrNoTriggers      = errors.New("workflow has no triggers")
	ErrAmbiguousStep   = errors.New("step declares both run and uses")
	ErrEmptyStep       = errors.New("step declares neither run nor uses")
	ErrUnknownNeed     = errors.New("job needs an undeclared job")
	ErrNeedsCycle      = errors.New("job dependency cycle")
	ErrDuplicateStepID = errors.New("duplicate step id")
)

func Parse(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}

	return &wf, nil
}

func ParseFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return wf, nil
}

func (w *Workflow) Validate() error {
	if len(w.On.Events) == 0 {
		return ErrNoTriggers
	}

	if len(w.Jobs) == 0 {
		return ErrNoJobs
	}

	for _, job := range w.Jobs {
		if err := job.validate(); err != nil {
			return fmt.Errorf("job %q: %w", job.ID, err)
		}

		for _, need := range job.Needs {
			if w.Jobs.Get(need) == nil {
				return fmt.Errorf("job %q needs %q: %w", job.ID, need, ErrUnknownNeed)
			}
		}
	}

	if err := w.checkNeedsCycles(); err != nil {
		return err
	}

	return nil
}

func (j *Job) validate() error {
	if len(j.Steps) == 0 {
		return ErrNoSteps
	}

	seenIDs := make(map[string]struct{})

	for index, step := range j.Steps {
		if step.Run != "" && step.Uses != "" {
			return fmt.Errorf("step %d (%s): %w", index+1, step.DisplayName(), ErrAmbiguousStep)
		}

		if step.Run == "" && step.Uses == "" {
			return fmt.Errorf("step %d (%s): %w", index+1, step.DisplayName(), ErrEmptyStep)
		}

		if step.ID == "" {
			continue
		}

		if _, seen := seenIDs[step.ID]; seen {
			return fmt.Errorf("step %d (%s): %w", index+1, step.ID, ErrDuplicateStepID)
		}

		seenIDs[step.ID] = struct{}{}
	}

	return nil
}

func (w *Workflow) checkNeedsCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(w.Jobs))

	var visit func(job *Job) error
	visit = func(job *Job) error {
		switch state[job.ID] {
		case visiting:
			return fmt.Errorf("%w: via %q", ErrNeedsCycle, job.ID)
		case done:
			return nil
		}

		state[job.ID] = visiting

		for _, need := range job.Needs {
			if err := visit(w.Jobs.Get(need)); err != nil {
				return err
			}
		}

		state[job.ID] = done

		return nil
	}

	for _, job := range w.Jobs {
		if err := visit(job); err != nil {
			return err
		}
	}

	return nil
}
