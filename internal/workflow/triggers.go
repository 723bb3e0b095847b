package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Triggers models the `on:` section. All three YAML shapes are accepted:
//
//	on: push
//	on: [push, pull_request]
//	on:
//	  push:
//	    branches: [main]
type Triggers struct {
	Events []EventTrigger
}

type EventTrigger struct {
	Name           string     `yaml:"-"`
	Branches       StringList `yaml:"branches"`
	BranchesIgnore StringList `yaml:"branches-ignore"`
	Tags           StringList `yaml:"tags"`
	Paths          StringList `yaml:"paths"`
}

func (t *Triggers) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}

		t.Events = []EventTrigger{{Name: name}}

		return nil

	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}

		events := make([]EventTrigger, 0, len(names))
		for _, name := range names {
			events = append(events, EventTrigger{Name: name})
		}

		t.Events = events

		return nil

	case yaml.MappingNode:
		events := make([]EventTrigger, 0, len(node.Content)/2)

		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valueNode := node.Content[i+1]

			var event EventTrigger
			if valueNode.Tag != "!!null" {
				if err := valueNode.Decode(&event); err != nil {
					return fmt.Errorf("trigger %q: %w", keyNode.Value, err)
				}
			}

			event.Name = keyNode.Value

			events = append(events, event)
		}

		t.Events = events

		return nil
	}

	return fmt.Errorf("on: expected a string, list or mapping, got %s", kindName(node.Kind))
}

// Event returns the trigger for the given event name, if declared.
func (t *Triggers) Event(name string) (EventTrigger, bool) {
	for _, event := range t.Events {
		if event.Name == name {
			return event, true
		}
	}

	return EventTrigger{}, false
}
