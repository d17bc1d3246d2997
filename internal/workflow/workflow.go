// Package workflow loads CI workflow files and checks them against the
// structure the meeting-map job depends on: when it fires, which secrets
// reach the run step, how dependencies are installed, and that the session
// cookie file is removed afterwards.
package workflow

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow is the subset of a GitHub Actions workflow the checker reads.
type Workflow struct {
	Name string            `yaml:"name"`
	On   Triggers          `yaml:"on"`
	Env  map[string]string `yaml:"env"`
	Jobs map[string]Job    `yaml:"jobs"`
}

// Job is one job of a workflow.
type Job struct {
	RunsOn string            `yaml:"runs-on"`
	Env    map[string]string `yaml:"env"`
	Steps  []Step            `yaml:"steps"`
}

// Step is a single job step: either an action (Uses) or a shell script (Run).
type Step struct {
	Name            string            `yaml:"name"`
	Uses            string            `yaml:"uses"`
	With            map[string]string `yaml:"with"`
	Run             string            `yaml:"run"`
	Env             map[string]string `yaml:"env"`
	If              string            `yaml:"if"`
	ContinueOnError string            `yaml:"continue-on-error"`
}

// continuesOnError reports a literal continue-on-error: true. Expressions
// are not evaluated.
func (s Step) continuesOnError() bool {
	return strings.EqualFold(strings.TrimSpace(s.ContinueOnError), "true")
}

// Label names the step for messages.
func (s Step) Label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Uses != "":
		return s.Uses
	default:
		return firstLine(s.Run)
	}
}

// Lines returns the non-empty, trimmed lines of the step's script.
func (s Step) Lines() []string {
	var out []string
	for _, l := range strings.Split(s.Run, "\n") {
		if l = strings.TrimSpace(l); l != "" && !strings.HasPrefix(l, "#") {
			out = append(out, l)
		}
	}
	return out
}

// Trigger is one event the workflow fires on, with its filters.
type Trigger struct {
	Event    string
	Branches []string
	Filters  []string // other filter keys (tags, paths, types, ...)
	Inputs   []string // workflow_dispatch inputs
}

// Triggers preserves the order events are declared in.
type Triggers []Trigger

// Event returns the trigger for name, if declared.
func (t Triggers) Event(name string) (Trigger, bool) {
	for _, tr := range t {
		if tr.Event == name {
			return tr, true
		}
	}
	return Trigger{}, false
}

// UnmarshalYAML accepts the three forms of "on": a single event name, a list
// of event names, or a map of events to their filters.
func (t *Triggers) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*t = Triggers{{Event: n.Value}}
	case yaml.SequenceNode:
		var events []string
		if err := n.Decode(&events); err != nil {
			return fmt.Errorf("on: %w", err)
		}
		out := make(Triggers, 0, len(events))
		for _, e := range events {
			out = append(out, Trigger{Event: e})
		}
		*t = out
	case yaml.MappingNode:
		out := make(Triggers, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			tr, err := decodeTrigger(n.Content[i].Value, n.Content[i+1])
			if err != nil {
				return err
			}
			out = append(out, tr)
		}
		*t = out
	default:
		return fmt.Errorf("on: unsupported yaml node kind %d", n.Kind)
	}
	return nil
}

func decodeTrigger(event string, body *yaml.Node) (Trigger, error) {
	tr := Trigger{Event: event}
	if body.Kind != yaml.MappingNode {
		// "push:" with no body decodes to a null scalar.
		return tr, nil
	}
	for i := 0; i+1 < len(body.Content); i += 2 {
		key, val := body.Content[i].Value, body.Content[i+1]
		switch key {
		case "branches":
			branches, err := stringList(val)
			if err != nil {
				return tr, fmt.Errorf("on.%s.branches: %w", event, err)
			}
			tr.Branches = branches
		case "inputs":
			if val.Kind == yaml.MappingNode {
				for j := 0; j+1 < len(val.Content); j += 2 {
					tr.Inputs = append(tr.Inputs, val.Content[j].Value)
				}
			}
		default:
			tr.Filters = append(tr.Filters, key)
		}
	}
	return tr, nil
}

func stringList(n *yaml.Node) ([]string, error) {
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, nil
	}
	var out []string
	if err := n.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Parse decodes a workflow document.
func Parse(data []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	if len(w.Jobs) == 0 {
		return nil, errors.New("parse workflow: no jobs")
	}
	return &w, nil
}

// Load reads and parses the workflow at path.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	return Parse(data)
}

// JobNames returns job IDs in sorted order.
func (w *Workflow) JobNames() []string {
	names := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
