package workflow

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/export"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/steps"
)

// LastPosition appends a step at the end of the pipeline.
const LastPosition = -1

func (w *Workflow) reachable(idx int) (steps.Step, error) {
	if idx < 0 || idx >= len(w.steps) {
		return nil, fmt.Errorf("%w: %d (pipeline has %d steps)", ErrStepOutOfRange, idx, len(w.steps))
	}
	if idx > w.active {
		return nil, fmt.Errorf("%w: step %d is not active yet (active step is %d)", ErrStepOutOfRange, idx, w.active)
	}
	return w.steps[idx], nil
}

// UpdateConfig replaces the config of step idx and lets the step react to
// the keys that changed.
func (w *Workflow) UpdateConfig(idx int, cfg api.Config) error {
	s, err := w.reachable(idx)
	if err != nil {
		return err
	}
	b := s.State()
	old, err := b.SetConfig(cfg)
	if err != nil {
		return err
	}
	changed := api.ChangedKeys(old, b.Config)
	if len(changed) == 0 {
		return nil
	}
	slog.Debug("config updated", "workflow", w.name, "step", idx, "keys", changed)
	if err := s.OnConfigChange(old, b.Config.Clone()); err != nil {
		return fmt.Errorf("step %d (%s): %w", idx, b.Type, err)
	}
	w.updateInfo()
	return nil
}

// SetConfigValue sets a single config key of step idx.
func (w *Workflow) SetConfigValue(idx int, key string, value any) error {
	s, err := w.reachable(idx)
	if err != nil {
		return err
	}
	next := s.State().Config.Clone()
	next[key] = value
	return w.UpdateConfig(idx, next)
}

// Execute raises the execution trigger of step idx. A step lacking the
// config it needs stays where it is and the trigger is reset.
func (w *Workflow) Execute(idx int) error {
	s, err := w.reachable(idx)
	if err != nil {
		return err
	}
	b := s.State()
	b.ToExecute = true
	w.updateInfo()
	err = s.Execute()
	b.ToExecute = false
	w.updateInfo()
	if err != nil {
		return fmt.Errorf("step %d (%s): %w", idx, b.Type, err)
	}
	return nil
}

// SetShown toggles the visibility flag of step idx.
func (w *Workflow) SetShown(idx int, shown bool) error {
	if idx < 0 || idx >= len(w.steps) {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, idx)
	}
	w.steps[idx].State().IsShown = shown
	w.updateInfo()
	return nil
}

// JumpTo moves the active pointer back to step idx. Every later step is
// cleared and forgets its outputs; step idx keeps its config and is
// activated again so the user can revise it.
func (w *Workflow) JumpTo(idx int) error {
	if idx < 0 || idx >= len(w.steps) {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, idx)
	}
	if idx > w.active {
		return fmt.Errorf("%w: cannot jump forward from %d to %d", ErrInvalidJump, w.active, idx)
	}
	slog.Info("jumping back", "workflow", w.name, "from", w.active, "to", idx)
	w.invalidateAfter(idx)
	w.active = idx
	w.message = ""
	s := w.steps[idx]
	b := s.State()
	b.Done = false
	b.IsProceeding = true
	b.PreviousConfig = b.Config.Clone()
	return w.callStepForward(s)
}

// AddStep inserts a step of stepType before position pos (LastPosition
// appends). When the new step lands at or before the active step it becomes
// active and everything after it is cleared.
func (w *Workflow) AddStep(stepType string, pos int, cfg api.StepConfig) error {
	if pos == LastPosition {
		pos = len(w.steps)
	}
	if pos < 1 || pos > len(w.steps) {
		return fmt.Errorf("%w: cannot insert at %d", ErrStepOutOfRange, pos)
	}
	s, err := steps.NewStep(api.StepTemplate{ID: pos, StepType: stepType, StepConfig: cfg})
	if err != nil {
		return err
	}
	s.State().Attach(w, s)

	w.steps = slices.Insert(w.steps, pos, s)
	for i, st := range w.steps {
		st.State().ID = i
	}
	shifted := make(map[int]steps.Values, len(w.outputs))
	for idx, rec := range w.outputs {
		if idx >= pos {
			idx++
		}
		shifted[idx] = rec
	}
	w.outputs = shifted
	slog.Info("step added", "workflow", w.name, "position", pos, "type", stepType)

	if pos > w.active {
		w.updateInfo()
		return nil
	}
	w.invalidateAfter(pos)
	w.active = pos
	s.State().IsProceeding = true
	return w.callStepForward(s)
}

// ImportDataset replaces the dataset and re-runs the whole pipeline with the
// choices already made.
func (w *Workflow) ImportDataset(name string, data *frame.Frame) error {
	if data == nil {
		return fmt.Errorf("importing %q: no data", name)
	}
	w.dataset = data
	w.current = data
	if name != "" {
		w.datasetName = name
	}
	slog.Info("dataset imported", "workflow", w.name, "dataset", w.datasetName, "rows", data.Len())
	if !w.started {
		return nil
	}

	first := w.steps[0]
	first.State().Done = false
	if w.active == 0 {
		first.State().IsProceeding = true
	}
	if err := w.callStepForward(first); err != nil {
		return err
	}
	if w.message == "" {
		w.message = fmt.Sprintf("The dataset was replaced by %q; the pipeline re-ran from the start.", w.datasetName)
		w.updateInfo()
	}
	return nil
}

// ExportCode renders the given steps, or every reached step, as analysis
// code. Steps that have not completed yet are rendered as a comment.
func (w *Workflow) ExportCode(ids ...int) (string, error) {
	if len(ids) == 0 {
		last := min(w.active, len(w.steps)-1)
		for i := 0; i <= last; i++ {
			ids = append(ids, i)
		}
	}
	var parts []string
	for _, idx := range ids {
		s, err := w.reachable(idx)
		if err != nil {
			return "", err
		}
		b := s.State()
		if !b.Done {
			parts = append(parts, fmt.Sprintf("# %s: not completed yet\n", b.Name))
			continue
		}
		code, err := s.Export()
		if err != nil {
			return "", fmt.Errorf("exporting step %d (%s): %w", idx, b.Type, err)
		}
		parts = append(parts, code)
	}
	return strings.Join(parts, "\n"), nil
}

// ExportRange renders the steps from..to inclusive.
func (w *Workflow) ExportRange(from, to int) (string, error) {
	if from > to {
		return "", fmt.Errorf("%w: empty range %d..%d", ErrStepOutOfRange, from, to)
	}
	ids := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, i)
	}
	return w.ExportCode(ids...)
}

// suggester is implemented by steps that feed values into suggestions.
type suggester interface {
	SuggestionData(col string) map[string]any
}

// RenderSuggestion renders suggestion name of step idx for column col. Data
// comes from the step itself and from earlier steps, the nearest winning.
func (w *Workflow) RenderSuggestion(idx int, name, col string) (*export.Rendered, error) {
	s, err := w.reachable(idx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(s.State().Suggestions, name) {
		return nil, fmt.Errorf("step %d offers no suggestion %q", idx, name)
	}
	data := map[string]any{}
	for i := 0; i <= idx; i++ {
		if sg, ok := w.steps[i].(suggester); ok {
			maps.Copy(data, sg.SuggestionData(col))
		}
	}
	if col != "" {
		data["col"] = col
	}
	return export.RenderAction(name, data)
}
