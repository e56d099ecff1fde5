package steps

import (
	"fmt"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/export"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
	"github.com/systemstart/guidedstats/pkg/viz"
)

// EvaluationResult is one scored evaluation metric.
type EvaluationResult struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// EvaluationStep scores the fitted model and writes the report. It is
// terminal: it finishes the pipeline instead of advancing it.
type EvaluationStep struct {
	*Base
	visType string
	metrics []string
}

// NewEvaluationStep creates an EvaluationStep.
func NewEvaluationStep(tpl api.StepTemplate) (Step, error) {
	cfg := tpl.StepConfig
	visType := cfg.VisType
	if visType == "" {
		visType = api.VisResidual
	}
	for _, m := range cfg.EvaluationMetricNames {
		if _, err := stats.Evaluation(m); err != nil {
			return nil, fmt.Errorf("step %d: %w", tpl.ID, err)
		}
	}
	inputs := []string{"model", "results", OutputXTest, OutputYTest, OutputXTrain, OutputYTrain}
	if visType == api.VisTTest {
		inputs = []string{"model", "results", "Y1", "Y2"}
	}
	initial := api.Config{"visType": visType, "evaluationMetricNames": cfg.EvaluationMetricNames}
	b, err := newBase(tpl, "Evaluate Model", inputs, []string{"evaluationResults"}, initial)
	if err != nil {
		return nil, err
	}
	return &EvaluationStep{Base: b, visType: visType, metrics: cfg.EvaluationMetricNames}, nil
}

// Forward evaluates right away.
func (s *EvaluationStep) Forward(inputs Values) error {
	s.Inputs = inputs
	return s.report(s.evaluate())
}

// OnConfigChange re-evaluates on a re-run.
func (s *EvaluationStep) OnConfigChange(_, _ api.Config) error {
	if !s.rerunning {
		return nil
	}
	return s.report(s.evaluate())
}

// Execute evaluates again with the stored inputs.
func (s *EvaluationStep) Execute() error { return s.report(s.evaluate()) }

func (s *EvaluationStep) evaluate() error {
	if s.Inputs == nil {
		return nil
	}
	model, ok := s.Inputs[s.InputNames[0]].(stats.Model)
	if !ok {
		return fmt.Errorf("step %d: input %q is %T, not a fitted model", s.ID, s.InputNames[0], s.Inputs[s.InputNames[0]])
	}
	results, ok := s.Inputs[s.InputNames[1]].(*stats.Results)
	if !ok {
		return fmt.Errorf("step %d: input %q is %T, not model results", s.ID, s.InputNames[1], s.Inputs[s.InputNames[1]])
	}
	if err := s.ChangeConfig("parameterResults", results); err != nil {
		return err
	}

	var (
		scores []EvaluationResult
		charts []viz.Viz
		err    error
	)
	switch s.visType {
	case api.VisTTest:
		charts, err = s.ttestViz()
	default:
		scores, charts, err = s.residuals(model)
	}
	if err != nil {
		return err
	}
	if err := s.ChangeConfig("evaluationResults", scores); err != nil {
		return err
	}
	if err := s.ChangeConfig("viz", charts); err != nil {
		return err
	}

	report, err := export.Report(results)
	if err != nil {
		return err
	}
	s.host.SetReport(report)
	return s.finish(Values{s.OutputNames[0]: scores, "report": report})
}

func (s *EvaluationStep) residuals(model stats.Model) ([]EvaluationResult, []viz.Viz, error) {
	xTest, err := s.frameInput(2)
	if err != nil {
		return nil, nil, err
	}
	yTest, err := s.frameInput(3)
	if err != nil {
		return nil, nil, err
	}
	pred, actual, err := predict(model, xTest, yTest)
	if err != nil {
		return nil, nil, err
	}
	nPredictors := xTest.Width()
	if p, ok := model.(stats.Predictors); ok {
		nPredictors = p.NumPredictors()
	}

	scores := make([]EvaluationResult, 0, len(s.metrics))
	for _, name := range s.metrics {
		fn, err := stats.Evaluation(name)
		if err != nil {
			return nil, nil, err
		}
		v, err := fn(actual, pred, nPredictors)
		if err != nil {
			return nil, nil, err
		}
		scores = append(scores, EvaluationResult{Name: name, Score: v})
	}

	points := viz.Residuals(pred, actual, "test", s.host.Rand())
	if len(s.InputNames) >= 6 {
		xTrain, errX := s.frameInput(4)
		yTrain, errY := s.frameInput(5)
		if errX == nil && errY == nil {
			if trainPred, trainActual, err := predict(model, xTrain, yTrain); err == nil {
				points = append(viz.Residuals(trainPred, trainActual, "train", s.host.Rand()), points...)
			}
		}
	}
	return scores, []viz.Viz{{VizType: viz.TypeResidual, VizStats: points}}, nil
}

func predict(model stats.Model, x, y *frame.Frame) (pred, actual []float64, err error) {
	cols, err := x.Matrix()
	if err != nil {
		return nil, nil, err
	}
	if pred, err = model.Predict(cols); err != nil {
		return nil, nil, err
	}
	if actual, err = firstColumn(y); err != nil {
		return nil, nil, err
	}
	return pred, actual, nil
}

func (s *EvaluationStep) ttestViz() ([]viz.Viz, error) {
	a, err := s.frameInput(2)
	if err != nil {
		return nil, err
	}
	b, err := s.frameInput(3)
	if err != nil {
		return nil, err
	}
	va, err := firstColumn(a)
	if err != nil {
		return nil, err
	}
	vb, err := firstColumn(b)
	if err != nil {
		return nil, err
	}
	points := viz.Density(va, vb, [2]string{"group1", "group2"}, s.host.Rand())
	return []viz.Viz{{VizType: viz.TypeTTest, VizStats: points}}, nil
}

// Export renders the evaluation code.
func (s *EvaluationStep) Export() (string, error) {
	return export.Render(s.Type, map[string]any{
		"stepName": s.Name,
		"visType":  s.visType,
		"metrics":  s.metrics,
	})
}
