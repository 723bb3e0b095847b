package workflow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow is a single declarative pipeline document. Jobs preserve the
// declaration order from the YAML mapping.
type Workflow struct {
	Name string            `yaml:"name"`
	On   Triggers          `yaml:"on"`
	Env  map[string]string `yaml:"env"`
	Jobs Jobs              `yaml:"jobs"`
}

type Job struct {
	// key in the `jobs` mapping, set during unmarshaling
	ID string `yaml:"-"`

	Name           string            `yaml:"name"`
	RunsOn         string            `yaml:"runs-on"`
	Needs          StringList        `yaml:"needs"`
	Env            map[string]string `yaml:"env"`
	TimeoutMinutes int               `yaml:"timeout-minutes"`
	Defaults       Defaults          `yaml:"defaults"`
	Steps          []Step            `yaml:"steps"`
}

type Defaults struct {
	Run RunDefaults `yaml:"run"`
}

type RunDefaults struct {
	Shell            string `yaml:"shell"`
	WorkingDirectory string `yaml:"working-directory"`
}

type Step struct {
	ID               string            `yaml:"id"`
	Name             string            `yaml:"name"`
	Run              string            `yaml:"run"`
	Uses             string            `yaml:"uses"`
	With             map[string]string `yaml:"with"`
	Env              map[string]string `yaml:"env"`
	If               string            `yaml:"if"`
	Shell            string            `yaml:"shell"`
	WorkingDirectory string            `yaml:"working-directory"`
	ContinueOnError  bool              `yaml:"continue-on-error"`
	TimeoutMinutes   int               `yaml:"timeout-minutes"`
}

// DisplayName is the human readable name for the step, matching what the
// document author would expect to see in logs.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}

	if s.Uses != "" {
		return s.Uses
	}

	line, _, _ := strings.Cut(strings.TrimSpace(s.Run), "\n")

	return line
}

func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}

	return j.ID
}

// StepOrder returns step display names in declaration order.
func (j *Job) StepOrder() []string {
	names := make([]string, 0, len(j.Steps))
	for i := range j.Steps {
		names = append(names, j.Steps[i].DisplayName())
	}

	return names
}

// Jobs is an ordered list of jobs decoded from a YAML mapping.
type Jobs []*Job

func (j *Jobs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("jobs: expected a mapping, got %s", kindName(node.Kind))
	}

	jobs := make(Jobs, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		var job Job
		if err := valueNode.Decode(&job); err != nil {
			return fmt.Errorf("job %q: %w", keyNode.Value, err)
		}

		job.ID = keyNode.Value

		jobs = append(jobs, &job)
	}

	*j = jobs

	return nil
}

func (j Jobs) Get(id string) *Job {
	for _, job := range j {
		if job.ID == id {
			return job
		}
	}

	return nil
}

// StringList accepts either a scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var value string
		if err := node.Decode(&value); err != nil {
			return err
		}

		*l = StringList{value}

		return nil

	case yaml.SequenceNode:
		var values []string
		if err := node.Decode(&values); err != nil {
			return err
		}

		*l = StringList(values)

		return nil
	}

	return fmt.Errorf("expected a string or a list of strings, got %s", kindName(node.Kind))
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}

	return "unknown"
}
