package steps

import (
	"fmt"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/export"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
)

// DataTransformationStep applies a named transformation to chosen columns.
type DataTransformationStep struct {
	*Base
}

// NewDataTransformationStep creates a DataTransformationStep. A
// transformationName in the template fixes the transformation.
func NewDataTransformationStep(tpl api.StepTemplate) (Step, error) {
	initial := api.Config{}
	if name := tpl.StepConfig.TransformationName; name != "" {
		if _, err := stats.LookupTransformation(name); err != nil {
			return nil, fmt.Errorf("step %d: %w", tpl.ID, err)
		}
		initial["transformationName"] = name
	}
	b, err := newBase(tpl, "Data Transformation", []string{"dataset"}, []string{"dataset"}, initial)
	if err != nil {
		return nil, err
	}
	b.UserKeys = []string{"transformationName", "variableResults"}
	return &DataTransformationStep{Base: b}, nil
}

// Forward publishes the transformable columns.
func (s *DataTransformationStep) Forward(inputs Values) error {
	s.Inputs = inputs
	df, err := s.frameInput(0)
	if err != nil {
		return err
	}
	var candidates []Candidate
	for _, col := range df.Columns() {
		if df.IsNumeric(col) {
			candidates = append(candidates, Candidate{Name: col})
		}
	}
	if err := s.ChangeConfig("variableCandidates", candidates); err != nil {
		return err
	}
	return s.ChangeConfig("transformationCandidates", stats.TransformationNames())
}

// OnConfigChange transforms once both transformationName and
// variableResults are set.
func (s *DataTransformationStep) OnConfigChange(old, new api.Config) error {
	if !s.changed(old, new, "transformationName", "variableResults") {
		return nil
	}
	return s.report(s.transform())
}

// Execute transforms with the current config.
func (s *DataTransformationStep) Execute() error { return s.report(s.transform()) }

func (s *DataTransformationStep) transform() error {
	name, ok := s.Config.String("transformationName")
	cols := s.Config.Names("variableResults")
	if !ok || name == "" || len(cols) == 0 || s.Inputs == nil {
		return nil
	}
	t, err := stats.LookupTransformation(name)
	if err != nil {
		return fmt.Errorf("step %d: %w", s.ID, err)
	}
	df, err := s.frameInput(0)
	if err != nil {
		return err
	}
	out := df
	for _, col := range cols {
		v, err := df.Floats(col)
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
	if current := s.host.CurrentFrame(); current != nil {
		if merged, err := current.Merge(out); err == nil {
			s.host.SetCurrentFrame(merged)
		}
	}
	return s.complete(Values{s.OutputNames[0]: out})
}

// Export renders the transformation code.
func (s *DataTransformationStep) Export() (string, error) {
	name, _ := s.Config.String("transformationName")
	return export.Render(s.Type, map[string]any{
		"stepName":           s.Name,
		"columns":            s.Config.Names("variableResults"),
		"transformationName": name,
	})
}
