package steps

import (
	"fmt"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/export"
)

// LoadDatasetStep hands the workflow dataset to the pipeline.
type LoadDatasetStep struct {
	*Base
}

// NewLoadDatasetStep creates a LoadDatasetStep.
func NewLoadDatasetStep(tpl api.StepTemplate) (Step, error) {
	b, err := newBase(tpl, "Load Dataset", nil, []string{"dataset"}, api.Config{})
	if err != nil {
		return nil, err
	}
	s := &LoadDatasetStep{Base: b}
	return s, nil
}

// Forward completes immediately with the workflow dataset.
func (s *LoadDatasetStep) Forward(inputs Values) error {
	s.Inputs = inputs
	return s.load()
}

func (s *LoadDatasetStep) load() error {
	data := s.host.Dataset()
	if data == nil {
		return fmt.Errorf("step %d (%s): workflow has no dataset", s.ID, s.Type)
	}
	if err := s.ChangeConfig("dataset", s.host.DatasetName()); err != nil {
		return err
	}
	if err := s.ChangeConfig("columns", data.Columns()); err != nil {
		return err
	}
	s.host.SetCurrentFrame(data)
	return s.complete(Values{s.OutputNames[0]: data})
}

// OnConfigChange has nothing to react to.
func (s *LoadDatasetStep) OnConfigChange(_, _ api.Config) error { return nil }

// Execute reloads the dataset.
func (s *LoadDatasetStep) Execute() error { return s.load() }

// Export renders the dataset loading code.
func (s *LoadDatasetStep) Export() (string, error) {
	return export.Render(s.Type, map[string]any{
		"stepName":    s.Name,
		"workflow":    export.WorkflowVariable,
		"datasetName": s.host.DatasetName(),
	})
}
