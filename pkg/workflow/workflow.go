// Package workflow orchestrates the steps of a guided analysis: it activates
// them in order, routes named outputs to later inputs, re-runs downstream
// steps after an edit and mirrors its state as an api.WorkflowInfo snapshot.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
	"github.com/systemstart/guidedstats/pkg/steps"
	"github.com/systemstart/guidedstats/pkg/telemetry"
)

var (
	// ErrMissingDependency is returned when no earlier step produced a
	// declared input.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrStepOutOfRange is returned for a step index that is not addressable.
	ErrStepOutOfRange = errors.New("step out of range")
	// ErrInvalidJump is returned when asked to jump past the active step.
	ErrInvalidJump = errors.New("invalid jump")
	// ErrSnapshotShape is returned when a snapshot does not match the pipeline.
	ErrSnapshotShape = errors.New("snapshot does not match the pipeline")
)

// Tracker receives step activity. *telemetry.Tracker implements it.
type Tracker interface {
	Activate(stepID int, stepType string) func(error)
	Completed(stepID int, stepType string)
	Warned(stepID int, stepType, message string)
	Reconciled(field string)
}

// Listener is called with a fresh snapshot after every state change.
type Listener func(info *api.WorkflowInfo)

// Option configures a Workflow.
type Option func(*Workflow)

// WithName sets the workflow name; it defaults to the template name.
func WithName(name string) Option { return func(w *Workflow) { w.name = name } }

// WithDatasetName sets the name the dataset is exported under.
func WithDatasetName(name string) Option { return func(w *Workflow) { w.datasetName = name } }

// WithSeed makes sampling and unseeded splits reproducible.
func WithSeed(seed uint64) Option {
	return func(w *Workflow) { w.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithTracker replaces the default telemetry tracker.
func WithTracker(t Tracker) Option { return func(w *Workflow) { w.tracker = t } }

// WithListener registers a snapshot listener.
func WithListener(l Listener) Option {
	return func(w *Workflow) { w.listeners = append(w.listeners, l) }
}

// Workflow is the orchestrator. It is not safe for concurrent use; callers
// serialize access.
type Workflow struct {
	name        string
	datasetName string
	dataset     *frame.Frame
	current     *frame.Frame
	model       stats.Model
	report      string
	message     string

	steps   []steps.Step
	outputs map[int]steps.Values
	active  int
	started bool

	mirror    *api.WorkflowInfo
	listeners []Listener
	tracker   Tracker
	rng       *rand.Rand
}

// New builds a workflow for tpl over data. Every step is constructed up
// front, so unknown step types, metrics or assumptions fail here.
func New(tpl *api.Template, data *frame.Frame, opts ...Option) (*Workflow, error) {
	if tpl == nil || len(tpl.Steps) == 0 {
		return nil, fmt.Errorf("workflow needs a template with at least one step")
	}
	w := &Workflow{
		name:        tpl.Name,
		datasetName: "dataset",
		dataset:     data,
		current:     data,
		outputs:     make(map[int]steps.Values),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.rng == nil {
		w.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if w.tracker == nil {
		w.tracker = telemetry.NewTracker(context.Background(), nil, w.name)
	}

	for i, st := range tpl.Steps {
		st.ID = i
		s, err := steps.NewStep(st)
		if err != nil {
			return nil, fmt.Errorf("creating step %d: %w", i, err)
		}
		s.State().Attach(w, s)
		w.steps = append(w.steps, s)
	}
	return w, nil
}

// Start activates the first step.
func (w *Workflow) Start() error {
	if w.started {
		return nil
	}
	w.started = true
	slog.Info("workflow started", "workflow", w.name, "steps", len(w.steps))
	return w.advance(0)
}

// MoveToNextStep records the outputs of s and activates the step after it.
// When s sits before the active step the later steps are re-run with their
// existing config; the first one that cannot complete becomes active.
func (w *Workflow) MoveToNextStep(s steps.Step) error {
	b := s.State()
	w.storeOutputs(b)
	b.IsProceeding = false
	b.ToExecute = false
	w.tracker.Completed(b.ID, b.Type)
	slog.Info("step completed", "workflow", w.name, "step", b.ID, "type", b.Type)

	next := b.ID + 1
	if next < w.active {
		slog.Info("re-entrant run", "workflow", w.name, "from", next, "active", w.active)
		return w.resume(next)
	}
	return w.advance(next)
}

// Finish records the outputs of a terminal step.
func (w *Workflow) Finish(s steps.Step) error {
	b := s.State()
	w.storeOutputs(b)
	b.IsProceeding = false
	b.ToExecute = false
	w.tracker.Completed(b.ID, b.Type)
	slog.Info("pipeline complete", "workflow", w.name, "step", b.ID)
	w.updateInfo()
	return nil
}

func (w *Workflow) storeOutputs(b *steps.Base) {
	rec, ok := w.outputs[b.ID]
	if !ok {
		rec = make(steps.Values, len(b.Outputs))
		w.outputs[b.ID] = rec
	}
	maps.Copy(rec, b.Outputs)
}

func (w *Workflow) advance(idx int) error {
	w.active = idx
	w.message = ""
	if idx >= len(w.steps) {
		slog.Info("pipeline complete", "workflow", w.name)
		w.updateInfo()
		return nil
	}
	s := w.steps[idx]
	s.State().IsProceeding = true
	slog.Info("step activated", "workflow", w.name, "step", idx, "type", s.State().Type)
	return w.callStepForward(s)
}

func (w *Workflow) resume(idx int) error {
	s := w.steps[idx]
	b := s.State()
	b.Done = false
	if err := w.callStepForward(s); err != nil {
		return err
	}
	if !b.Done {
		if err := b.Rerun(); err != nil {
			return err
		}
	}
	if !b.Done {
		slog.Info("re-entrant run halted", "workflow", w.name, "step", idx, "type", b.Type)
		w.invalidateAfter(idx)
		w.active = idx
		b.IsProceeding = true
		w.updateInfo()
	}
	return nil
}

// invalidateAfter clears every step after idx and drops its outputs.
func (w *Workflow) invalidateAfter(idx int) {
	for j := idx + 1; j < len(w.steps); j++ {
		b := w.steps[j].State()
		b.Clear()
		b.Done = false
		b.IsProceeding = false
		b.ToExecute = false
		b.Inputs = nil
		b.Outputs = nil
		delete(w.outputs, j)
	}
}

func (w *Workflow) callStepForward(s steps.Step) error {
	b := s.State()
	inputs, err := w.resolveInputs(b)
	if err != nil {
		return err
	}
	end := w.tracker.Activate(b.ID, b.Type)
	err = s.Forward(inputs)
	end(err)
	w.updateInfo()
	if err != nil {
		return fmt.Errorf("step %d (%s): %w", b.ID, b.Type, err)
	}
	return nil
}

// resolveInputs looks every declared input up in the nearest earlier step
// that produced it.
func (w *Workflow) resolveInputs(b *steps.Base) (steps.Values, error) {
	if b.SucceedPrevious {
		inputs := steps.Values{}
		if b.ID > 0 {
			maps.Copy(inputs, w.outputs[b.ID-1])
		}
		return inputs, nil
	}
	inputs := make(steps.Values, len(b.InputNames))
	for _, name := range b.InputNames {
		v, ok := w.lookup(name, b.ID)
		if !ok {
			return nil, fmt.Errorf("%w: step %d (%s) needs %q but no earlier step produced it",
				ErrMissingDependency, b.ID, b.Type, name)
		}
		inputs[name] = v
	}
	return inputs, nil
}

func (w *Workflow) lookup(name string, before int) (any, bool) {
	for i := before - 1; i >= 0; i-- {
		if v, ok := w.outputs[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Dataset returns the dataset the pipeline was loaded with.
func (w *Workflow) Dataset() *frame.Frame { return w.dataset }

// DatasetName returns the name the dataset is exported under.
func (w *Workflow) DatasetName() string { return w.datasetName }

// CurrentFrame returns the working dataset, including transformations.
func (w *Workflow) CurrentFrame() *frame.Frame { return w.current }

// SetCurrentFrame replaces the working dataset.
func (w *Workflow) SetCurrentFrame(f *frame.Frame) { w.current = f }

// CurrentModel returns the last fitted model.
func (w *Workflow) CurrentModel() stats.Model { return w.model }

// SetCurrentModel records the last fitted model.
func (w *Workflow) SetCurrentModel(m stats.Model) { w.model = m }

// Report returns the textual report of the last evaluation.
func (w *Workflow) Report() string { return w.report }

// SetReport records the textual report.
func (w *Workflow) SetReport(r string) {
	w.report = r
	w.updateInfo()
}

// Message returns the current workflow message.
func (w *Workflow) Message() string { return w.message }

// Warn publishes a data problem of s as the workflow message.
func (w *Workflow) Warn(s steps.Step, message string) {
	b := s.State()
	w.message = message
	w.tracker.Warned(b.ID, b.Type, message)
	w.updateInfo()
}

// ConfigChanged refreshes the snapshot after a step rewrote its config.
func (w *Workflow) ConfigChanged(s steps.Step) {
	slog.Debug("config changed", "workflow", w.name, "step", s.State().ID)
	w.updateInfo()
}

// Rand returns the workflow random source.
func (w *Workflow) Rand() *rand.Rand { return w.rng }

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// ActiveStep returns the index of the active step; it equals the number of
// steps once the pipeline ran past its last step.
func (w *Workflow) ActiveStep() int { return w.active }

// Len returns the number of steps.
func (w *Workflow) Len() int { return len(w.steps) }

// Step returns the step at idx.
func (w *Workflow) Step(idx int) (steps.Step, error) {
	if idx < 0 || idx >= len(w.steps) {
		return nil, fmt.Errorf("%w: %d", ErrStepOutOfRange, idx)
	}
	return w.steps[idx], nil
}

// Outputs returns a copy of the stored outputs of step idx.
func (w *Workflow) Outputs(idx int) steps.Values {
	return maps.Clone(w.outputs[idx])
}

// Complete reports whether the pipeline ran to its end.
func (w *Workflow) Complete() bool {
	if w.active >= len(w.steps) {
		return true
	}
	last := w.steps[len(w.steps)-1].State()
	return w.active == len(w.steps)-1 && last.Done
}

// Subscribe registers a listener and returns a func that removes it.
func (w *Workflow) Subscribe(l Listener) func() {
	w.listeners = append(w.listeners, l)
	idx := len(w.listeners) - 1
	return func() {
		if idx < len(w.listeners) {
			w.listeners[idx] = nil
		}
	}
}

// Info returns the current snapshot.
func (w *Workflow) Info() *api.WorkflowInfo {
	info := &api.WorkflowInfo{
		WorkflowName:  w.name,
		CurrentStepID: w.active,
		Message:       w.message,
		Report:        w.report,
		Steps:         make([]api.StepInfo, len(w.steps)),
	}
	for i, s := range w.steps {
		info.Steps[i] = s.State().Info()
	}
	return info
}

func (w *Workflow) updateInfo() {
	if len(w.listeners) == 0 {
		return
	}
	info := w.Info()
	for _, l := range w.listeners {
		if l != nil {
			l(info)
		}
	}
}
