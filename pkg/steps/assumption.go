package steps

import (
	"fmt"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/assumptions"
	"github.com/systemstart/guidedstats/pkg/export"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
)

const vifLimit = 10

// AssumptionCheckingStep runs a statistical precondition on its first input
// and lets the user transform the data before approving it.
type AssumptionCheckingStep struct {
	*Base
	assumption  assumptions.Assumption
	relaxed     bool
	transformed *frame.Frame
	results     []assumptions.CheckResult
}

// NewAssumptionCheckingStep creates an AssumptionCheckingStep.
func NewAssumptionCheckingStep(tpl api.StepTemplate) (Step, error) {
	cfg := tpl.StepConfig
	a, err := assumptions.Lookup(cfg.AssumptionName)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", tpl.ID, err)
	}
	initial := api.Config{
		"assumptionName": a.Name,
		"isRelaxed":      cfg.Relaxed(),
	}
	b, err := newBase(tpl, a.Display, []string{"dataset"}, nil, initial)
	if err != nil {
		return nil, err
	}
	if len(b.OutputNames) == 0 {
		b.OutputNames = b.InputNames[:1]
	}
	b.UserKeys = []string{"transformationName", "variableResults", "approved"}
	return &AssumptionCheckingStep{Base: b, assumption: a, relaxed: cfg.Relaxed()}, nil
}

// Forward checks the assumption on the first input.
func (s *AssumptionCheckingStep) Forward(inputs Values) error {
	s.Inputs = inputs
	s.transformed = nil
	s.results = nil
	if err := s.ChangeConfig("transformationCandidates", stats.TransformationNames()); err != nil {
		return err
	}
	x, err := s.frameInput(0)
	if err != nil {
		return err
	}
	return s.report(s.check(x, nil))
}

func (s *AssumptionCheckingStep) check(x, previous *frame.Frame) error {
	in := assumptions.Input{X: x, Previous: previous}
	for i := 1; i < len(s.InputNames); i++ {
		ref, err := s.frameInput(i)
		if err != nil {
			return err
		}
		in.Refs = append(in.Refs, ref)
	}
	results, charts, err := s.assumption.Check(in, s.host.Rand())
	if err != nil {
		return err
	}
	s.results = results
	if err := s.ChangeConfig("assumptionResults", results); err != nil {
		return err
	}
	if err := s.ChangeConfig("viz", charts); err != nil {
		return err
	}
	if v := s.violations(); len(v) > 0 && !s.relaxed {
		s.Message = fmt.Sprintf("%s is not met for %v; review the suggestions before continuing", s.assumption.Display, v)
		s.host.Warn(s, s.Message)
	}
	return nil
}

// violations lists the columns failing the check.
func (s *AssumptionCheckingStep) violations() []string {
	var cols []string
	for _, r := range s.results {
		if violated(s.assumption.Name, r) {
			cols = append(cols, r.Name)
		}
	}
	return cols
}

func violated(name string, r assumptions.CheckResult) bool {
	switch name {
	case "outlier":
		return r.Stats != nil && *r.Stats > 0
	case "multicollinearity":
		return r.Stats != nil && *r.Stats > vifLimit
	}
	return r.Rejects()
}

// OnConfigChange applies a transformation when transformationName and
// variableResults change, and approves on approved=true. A re-run only
// approves by itself when the check is relaxed.
func (s *AssumptionCheckingStep) OnConfigChange(old, new api.Config) error {
	if s.rerunning {
		if err := s.transform(); err != nil {
			return s.report(err)
		}
		if s.relaxed && s.Config.Bool("approved") {
			return s.approve()
		}
		return nil
	}
	if s.changed(old, new, "transformationName", "variableResults") {
		if err := s.transform(); err != nil {
			return s.report(err)
		}
	}
	if s.changed(old, new, "approved") && s.Config.Bool("approved") {
		return s.approve()
	}
	return nil
}

// Execute approves the current data.
func (s *AssumptionCheckingStep) Execute() error { return s.approve() }

func (s *AssumptionCheckingStep) transform() error {
	if s.Inputs == nil {
		return nil
	}
	x, err := s.frameInput(0)
	if err != nil {
		return err
	}
	name, ok := s.Config.String("transformationName")
	cols := s.Config.Names("variableResults")
	if !ok || name == "" || len(cols) == 0 {
		if s.transformed == nil {
			return nil
		}
		s.transformed = nil
		return s.check(x, nil)
	}

	t, err := stats.LookupTransformation(name)
	if err != nil {
		return fmt.Errorf("step %d: %w", s.ID, err)
	}
	out := x
	for _, col := range cols {
		v, err := x.Floats(col)
		if err != nil {
			return err
		}
		tv, err := t.Func(v)
		if err != nil {
			return fmt.Errorf("%s of %q: %w", t.DisplayName, col, err)
		}
		if out, err = out.WithColumn(frame.FloatSeries(col, tv)); err != nil {
			return err
		}
	}
	s.transformed = out
	return s.check(out, x)
}

func (s *AssumptionCheckingStep) approve() error {
	if s.results == nil {
		return nil
	}
	x := s.transformed
	if x == nil {
		var err error
		if x, err = s.frameInput(0); err != nil {
			return err
		}
	}
	if !s.Config.Bool("approved") {
		if err := s.ChangeConfig("approved", true); err != nil {
			return err
		}
	}
	outputs := Values{s.OutputNames[0]: x}
	for i := 1; i < len(s.OutputNames) && i < len(s.InputNames); i++ {
		outputs[s.OutputNames[i]] = s.Inputs[s.InputNames[i]]
	}
	return s.complete(outputs)
}

// SuggestionData returns the values the suggestions of this step render with.
func (s *AssumptionCheckingStep) SuggestionData(col string) map[string]any {
	data := map[string]any{}
	if x, err := s.frameInput(0); err == nil {
		data["columns"] = x.Columns()
		if col == "" && x.Width() > 0 {
			col = x.Columns()[0]
		}
	}
	data["col"] = col
	for _, r := range s.results {
		if r.Name != col {
			continue
		}
		for k, v := range r.Values {
			data[k] = v
		}
	}
	return data
}

// Export renders the check, and the transformation when one was applied.
func (s *AssumptionCheckingStep) Export() (string, error) {
	name, _ := s.Config.String("transformationName")
	data := map[string]any{
		"stepName":           s.Name,
		"display":            s.assumption.Display,
		"transformationName": name,
		"transformedColumns": s.Config.Names("variableResults"),
		"source":             s.InputNames[0],
		"results":            s.Config["assumptionResults"],
		"outputNames":        s.OutputNames,
	}
	return export.Render(s.Type, data)
}
