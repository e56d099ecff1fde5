package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	ActionConfig  = "config"
	ActionExecute = "execute"
	ActionJump    = "jump"
	ActionAddStep = "addStep"
	ActionImport  = "import"
	ActionShow    = "show"
)

// Script is a recorded sequence of user actions replayed against a workflow.
type Script struct {
	Template    string         `yaml:"template"`
	Data        string         `yaml:"data"`
	DatasetName string         `yaml:"datasetName"`
	Seed        *uint64        `yaml:"seed,omitempty"`
	Context     map[string]any `yaml:"context,omitempty"`
	Actions     []ScriptAction `yaml:"actions"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-"`
}

// ScriptAction is one user action. Exactly one of Config, Execute, Jump,
// AddStep, Import or Show is set; Step addresses Config, Execute and Show.
type ScriptAction struct {
	Step    int            `yaml:"step"`
	Config  map[string]any `yaml:"config,omitempty"`
	Execute bool           `yaml:"execute,omitempty"`
	Show    *bool          `yaml:"show,omitempty"`
	Jump    *int           `yaml:"jump,omitempty"`
	AddStep *AddStep       `yaml:"addStep,omitempty"`
	Import  string         `yaml:"import,omitempty"`
}

// AddStep inserts a step of StepType before Position (-1 appends).
type AddStep struct {
	StepType string     `yaml:"stepType"`
	Position int        `yaml:"position"`
	Config   StepConfig `yaml:"stepConfig"`
}

// Kind names the action type.
func (a ScriptAction) Kind() string {
	switch {
	case a.Config != nil:
		return ActionConfig
	case a.Execute:
		return ActionExecute
	case a.Show != nil:
		return ActionShow
	case a.Jump != nil:
		return ActionJump
	case a.AddStep != nil:
		return ActionAddStep
	case a.Import != "":
		return ActionImport
	}
	return ""
}

// LoadScript reads a script YAML file, unmarshals it, and validates.
func LoadScript(filename string) (*Script, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading script file: %w", err)
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script file: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating script file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	s.FilePath = absPath
	return &s, nil
}

// Validate checks the script for errors.
func (s *Script) Validate() error {
	for i, a := range s.Actions {
		set := 0
		if a.Config != nil {
			set++
		}
		if a.Execute {
			set++
		}
		if a.Show != nil {
			set++
		}
		if a.Jump != nil {
			set++
		}
		if a.AddStep != nil {
			set++
		}
		if a.Import != "" {
			set++
		}
		if set != 1 {
			return fmt.Errorf("action %d: exactly one of config, execute, show, jump, addStep or import must be set", i)
		}
		if a.Step < 0 {
			return fmt.Errorf("action %d: step must not be negative", i)
		}
		if a.AddStep != nil && !IsStepType(a.AddStep.StepType) {
			return fmt.Errorf("action %d: unknown step type %q", i, a.AddStep.StepType)
		}
	}
	return nil
}
