package steps

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
)

// Values is the named output record of a step.
type Values map[string]any

// Host is the workflow side of a step. Steps never see their siblings; they
// report completion and publish shared state through the host.
type Host interface {
	// MoveToNextStep records the outputs of s and activates what follows.
	MoveToNextStep(s Step) error
	// Finish records the outputs of a terminal step without advancing.
	Finish(s Step) error
	Dataset() *frame.Frame
	DatasetName() string
	CurrentFrame() *frame.Frame
	SetCurrentFrame(f *frame.Frame)
	SetCurrentModel(m stats.Model)
	SetReport(report string)
	// Warn surfaces a recoverable data problem to the user.
	Warn(s Step, message string)
	// ConfigChanged is called after the step rewrote part of its state.
	ConfigChanged(s Step)
	Rand() *rand.Rand
}

// Step is one stage of a guided analysis.
type Step interface {
	// State exposes the shared step state.
	State() *Base
	// Forward receives the resolved inputs when the step is activated.
	Forward(inputs Values) error
	// OnConfigChange reacts to an externally replaced config.
	OnConfigChange(old, new api.Config) error
	// Execute handles an explicit "run" request.
	Execute() error
	// Export renders the step as standalone analysis code.
	Export() (string, error)
}

// Base carries the state shared by every step type.
type Base struct {
	ID          int
	Name        string
	Type        string
	Explanation string
	Suggestions []string

	Done         bool
	IsProceeding bool
	ToExecute    bool
	IsShown      bool

	Config         api.Config
	PreviousConfig api.Config
	GroupConfig    api.Config
	Message        string

	InputNames      []string
	OutputNames     []string
	SucceedPrevious bool
	// UserKeys are the config keys only a user writes.
	UserKeys []string

	Inputs  Values
	Outputs Values

	host      Host
	self      Step
	initial   api.Config
	rerunning bool
}

func newBase(tpl api.StepTemplate, defaultName string, inputs, outputs []string, initial api.Config) (*Base, error) {
	cfg := tpl.StepConfig
	b := &Base{
		ID:              tpl.ID,
		Name:            cfg.StepName,
		Type:            tpl.StepType,
		Explanation:     tpl.StepExplanation,
		Suggestions:     slices.Clone(tpl.Suggestions),
		IsShown:         true,
		InputNames:      cfg.InputNames,
		OutputNames:     cfg.OutputNames,
		SucceedPrevious: cfg.SucceedPreviousStepOutput,
		GroupConfig:     api.Config{},
		PreviousConfig:  api.Config{},
	}
	if b.Name == "" {
		b.Name = defaultName
	}
	if len(b.InputNames) == 0 {
		b.InputNames = inputs
	}
	if len(b.OutputNames) == 0 {
		b.OutputNames = outputs
	}
	normalized, err := api.NormalizeConfig(initial)
	if err != nil {
		return nil, fmt.Errorf("step %d (%s): %w", tpl.ID, tpl.StepType, err)
	}
	b.initial = normalized
	b.Config = normalized.Clone()
	return b, nil
}

// Attach binds the step to its host. self must be the step embedding b.
func (b *Base) Attach(h Host, self Step) {
	b.host = h
	b.self = self
}

// State returns b; variants embedding *Base satisfy Step through it.
func (b *Base) State() *Base { return b }

// Info returns the observable state of the step.
func (b *Base) Info() api.StepInfo {
	return api.StepInfo{
		StepID:          b.ID,
		StepName:        b.Name,
		StepType:        b.Type,
		StepExplanation: b.Explanation,
		Suggestions:     slices.Clone(b.Suggestions),
		Done:            b.Done,
		IsProceeding:    b.IsProceeding,
		ToExecute:       b.ToExecute,
		IsShown:         b.IsShown,
		Config:          b.Config.Clone(),
		PreviousConfig:  b.PreviousConfig.Clone(),
		GroupConfig:     b.GroupConfig.Clone(),
		Message:         b.Message,
	}
}

// ChangeConfig sets one key to the normalized form of value and notifies the
// host. It does not trigger OnConfigChange.
func (b *Base) ChangeConfig(key string, value any) error {
	v, err := api.Normalize(value)
	if err != nil {
		return fmt.Errorf("step %d config %q: %w", b.ID, key, err)
	}
	b.Config = b.Config.Clone()
	b.Config[key] = v
	b.notify()
	return nil
}

func (b *Base) changeGroupConfig(key string, value any) error {
	v, err := api.Normalize(value)
	if err != nil {
		return fmt.Errorf("step %d group config %q: %w", b.ID, key, err)
	}
	b.GroupConfig = b.GroupConfig.Clone()
	b.GroupConfig[key] = v
	b.notify()
	return nil
}

// SetConfig replaces the whole config and returns the previous one. The
// caller is expected to pass both to OnConfigChange.
func (b *Base) SetConfig(c api.Config) (api.Config, error) {
	normalized, err := api.NormalizeConfig(c)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", b.ID, err)
	}
	old := b.Config
	b.Config = normalized
	b.notify()
	return old, nil
}

// Clear drops everything the user and the step wrote into the config, keeping
// the template-defined keys. Inputs and outputs are left alone.
func (b *Base) Clear() {
	b.Config = b.initial.Clone()
	b.GroupConfig = api.Config{}
	b.PreviousConfig = api.Config{}
	b.Message = ""
}

// Rerun replays the current config through OnConfigChange so that a step
// with fresh inputs can complete again with the choices already made.
func (b *Base) Rerun() error {
	b.PreviousConfig = b.Config.Clone()
	b.rerunning = true
	defer func() { b.rerunning = false }()
	slog.Debug("re-running step", "step", b.ID, "type", b.Type)
	return b.self.OnConfigChange(api.Config{}, b.Config.Clone())
}

// Initial returns the template-defined config.
func (b *Base) Initial() api.Config { return b.initial.Clone() }

// Host returns the attached host.
func (b *Base) Host() Host { return b.host }

func (b *Base) notify() {
	if b.host != nil && b.self != nil {
		b.host.ConfigChanged(b.self)
	}
}

func (b *Base) complete(outputs Values) error {
	b.Outputs = outputs
	b.Done = true
	b.Message = ""
	slog.Debug("step completed", "step", b.ID, "type", b.Type, "outputs", slices.Sorted(maps.Keys(outputs)))
	return b.host.MoveToNextStep(b.self)
}

func (b *Base) finish(outputs Values) error {
	b.Outputs = outputs
	b.Done = true
	b.Message = ""
	return b.host.Finish(b.self)
}

// report turns a data problem into a user-facing message and swallows it.
// Every other error is returned unchanged.
func (b *Base) report(err error) error {
	if err == nil {
		return nil
	}
	if !isDataError(err) {
		return err
	}
	slog.Warn("step could not complete", "step", b.ID, "type", b.Type, "error", err)
	b.Message = err.Error()
	b.host.Warn(b.self, b.Message)
	return nil
}

func isDataError(err error) bool {
	return errors.Is(err, stats.ErrInvalidData) ||
		errors.Is(err, frame.ErrColumnNotFound) ||
		errors.Is(err, frame.ErrNotNumeric)
}

// frameInput returns the i-th declared input as a frame.
func (b *Base) frameInput(i int) (*frame.Frame, error) {
	if i >= len(b.InputNames) {
		return nil, fmt.Errorf("step %d (%s) declares no input %d", b.ID, b.Type, i)
	}
	name := b.InputNames[i]
	f, ok := b.Inputs[name].(*frame.Frame)
	if !ok {
		return nil, fmt.Errorf("step %d (%s): input %q is %T, not a dataset", b.ID, b.Type, name, b.Inputs[name])
	}
	return f, nil
}

// optionalFrameInput is like frameInput but returns nil when the input is
// not declared.
func (b *Base) optionalFrameInput(i int) (*frame.Frame, error) {
	if i >= len(b.InputNames) {
		return nil, nil
	}
	return b.frameInput(i)
}

func (b *Base) changed(old, new api.Config, keys ...string) bool {
	if b.rerunning {
		return true
	}
	diff := api.ChangedKeys(old, new)
	for _, k := range keys {
		if slices.Contains(diff, k) {
			return true
		}
	}
	return false
}
