package steps

import (
	"fmt"
	"strings"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/export"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
)

// ModelStep fits the model the user picks among the template candidates.
type ModelStep struct {
	*Base
	candidates []api.ModelCandidate
}

// NewModelStep creates a ModelStep.
func NewModelStep(tpl api.StepTemplate) (Step, error) {
	cfg := tpl.StepConfig
	for _, c := range cfg.ModelCandidates {
		if _, err := stats.Fitter(c.Name); err != nil {
			return nil, fmt.Errorf("step %d: %w", tpl.ID, err)
		}
	}
	initial := api.Config{"modelCandidates": cfg.ModelCandidates}
	b, err := newBase(tpl, "Train Model", []string{OutputXTrain, OutputYTrain}, []string{"model", "results"}, initial)
	if err != nil {
		return nil, err
	}
	b.UserKeys = []string{"modelName", "modelParameters"}
	return &ModelStep{Base: b, candidates: cfg.ModelCandidates}, nil
}

// Forward stores the training data and waits for a model choice.
func (s *ModelStep) Forward(inputs Values) error {
	s.Inputs = inputs
	return nil
}

// OnConfigChange fits when modelName or modelParameters changes.
func (s *ModelStep) OnConfigChange(old, new api.Config) error {
	if !s.changed(old, new, "modelName", "modelParameters") {
		return nil
	}
	return s.report(s.fit())
}

// Execute fits with the current config.
func (s *ModelStep) Execute() error { return s.report(s.fit()) }

func (s *ModelStep) fit() error {
	name, ok := s.Config.String("modelName")
	if !ok || name == "" || s.Inputs == nil {
		return nil
	}
	fit, err := stats.Fitter(name)
	if err != nil {
		return fmt.Errorf("step %d: %w", s.ID, err)
	}
	x, err := s.frameInput(0)
	if err != nil {
		return err
	}
	yf, err := s.frameInput(1)
	if err != nil {
		return err
	}
	cols, err := x.Matrix()
	if err != nil {
		return err
	}
	y, err := firstColumn(yf)
	if err != nil {
		return err
	}

	model, results, err := fit(cols, x.Columns(), y, s.Config.Map("modelParameters"))
	if err != nil {
		return err
	}
	if err := s.ChangeConfig("modelResults", results.Stats); err != nil {
		return err
	}
	s.host.SetCurrentModel(model)
	return s.complete(Values{s.OutputNames[0]: model, s.OutputNames[1]: results})
}

func firstColumn(f *frame.Frame) ([]float64, error) {
	if f.Width() == 0 {
		return nil, fmt.Errorf("%w: the response has no columns", stats.ErrInvalidData)
	}
	return f.Floats(f.Columns()[0])
}

// Export renders the model fitting code.
func (s *ModelStep) Export() (string, error) {
	name, _ := s.Config.String("modelName")
	params := s.Config.Map("modelParameters")
	data := map[string]any{
		"stepName":    s.Name,
		"modelName":   name,
		"x":           s.InputNames[0],
		"y":           s.InputNames[1],
		"alpha":       paramOr(params, "alpha", "1.0"),
		"equalVar":    equalVar(params),
		"alternative": paramOr(params, "alternative", stats.AlternativeTwoSided),
	}
	return export.Render(s.Type, data)
}

func paramOr(params map[string]any, key string, def any) any {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func equalVar(params map[string]any) bool {
	switch v := params["equal_var"].(type) {
	case bool:
		return v
	case string:
		return !strings.EqualFold(v, "false")
	}
	return true
}
