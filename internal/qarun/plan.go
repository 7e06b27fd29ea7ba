// Package qarun drives scripted QA sessions: each plan step is browsed and
// its progress broadcast to the plan's test session.
package qarun

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/qabrowser/pkg/events"
)

// Plan is a named list of browser steps.
type Plan struct {
	Name          string `yaml:"name"`
	TestID        string `yaml:"test_id"`
	ScreenshotDir string `yaml:"screenshot_dir"`
	Steps         []Step `yaml:"steps"`
}

// Step is one browser action. Exactly one of Navigate and Interact is set.
type Step struct {
	Name         string `yaml:"name"`
	Navigate     string `yaml:"navigate"`
	Interact     string `yaml:"interact"`
	Thought      string `yaml:"thought"`
	ReturnAXTree bool   `yaml:"return_axtree"`
	Risk         string `yaml:"risk"`
}

// LoadPlan reads and validates a YAML plan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// ParsePlan decodes a YAML plan, rejecting unknown keys, and fills in
// defaults: the test id is derived from the name and unnamed steps are
// numbered.
func ParsePlan(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.TestID == "" {
		p.TestID = NormalizeTestID(p.Name)
	}
	for i := range p.Steps {
		if strings.TrimSpace(p.Steps[i].Name) == "" {
			p.Steps[i].Name = fmt.Sprintf("step %d", i+1)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that the plan can run.
func (p *Plan) Validate() error {
	var errs []error
	if p.TestID == "" {
		errs = append(errs, errors.New("test_id is required"))
	}
	if len(p.Steps) == 0 {
		errs = append(errs, errors.New("plan has no steps"))
	}
	for i, s := range p.Steps {
		hasNav, hasInteract := s.Navigate != "", s.Interact != ""
		if hasNav == hasInteract {
			errs = append(errs, fmt.Errorf("step %d (%s): exactly one of navigate or interact is required", i+1, s.Name))
		}
		if _, err := events.ParseSecurityRisk(s.Risk); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i+1, s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// action builds the event for s and gives it the next id from seq.
func (s Step) action(seq *events.Sequencer) (events.Action, error) {
	risk, err := events.ParseSecurityRisk(s.Risk)
	if err != nil {
		return nil, err
	}
	if s.Navigate != "" {
		a := events.NewNavigateAction(s.Navigate)
		a.Thought = s.Thought
		a.ReturnAXTree = s.ReturnAXTree
		a.SecurityRisk = risk
		seq.Assign(&a.Event)
		return a, nil
	}
	a := events.NewInteractAction(s.Interact)
	a.Thought = s.Thought
	a.ReturnAXTree = s.ReturnAXTree
	a.SecurityRisk = risk
	seq.Assign(&a.Event)
	return a, nil
}
