package api

import (
	"strings"
	"testing"
)

func validTemplate() *Template {
	return &Template{
		Name: "regression",
		Steps: []StepTemplate{
			{ID: 0, StepType: StepTypeLoadDataset, StepConfig: StepConfig{StepName: "Load"}},
			{ID: 1, StepType: StepTypeVariableSelection, StepConfig: StepConfig{
				StepName:     "Select",
				VariableType: VariableDependent,
				VariableNum:  1,
				CandidateNum: 4,
			}},
		},
	}
}

func TestValidate_ValidTemplate(t *testing.T) {
	if err := validTemplate().Validate(); err != nil {
		t.Fatalf("expected valid template, got error: %v", err)
	}
}

func TestValidate_EmptyTemplate(t *testing.T) {
	err := (&Template{}).Validate()
	if err == nil {
		t.Fatal("expected error for empty template")
	}
	if !strings.Contains(err.Error(), "no steps") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	half := 1.5
	tests := []struct {
		name   string
		mutate func(*Template)
		want   string
	}{
		{"id mismatch", func(tp *Template) { tp.Steps[1].ID = 4 }, "does not match its position"},
		{"unknown type", func(tp *Template) { tp.Steps[1].StepType = "BogusStep" }, "unknown step type"},
		{"bad variable type", func(tp *Template) { tp.Steps[1].StepConfig.VariableType = "x" }, "variableType"},
		{"compare without metric", func(tp *Template) { tp.Steps[1].StepConfig.Compare = true }, "metricName is required"},
		{"group needs two outputs", func(tp *Template) {
			tp.Steps[1].StepConfig.VariableType = VariableGroup
			tp.Steps[1].StepConfig.OutputNames = []string{"Y1"}
		}, "exactly two outputNames"},
		{"assumption name", func(tp *Template) {
			tp.Steps = append(tp.Steps, StepTemplate{ID: 2, StepType: StepTypeAssumptionChecking})
		}, "assumptionName is required"},
		{"train size", func(tp *Template) {
			tp.Steps = append(tp.Steps, StepTemplate{ID: 2, StepType: StepTypeTrainTestSplit, StepConfig: StepConfig{TrainSize: &half}})
		}, "trainSize"},
		{"vis type", func(tp *Template) {
			tp.Steps = append(tp.Steps, StepTemplate{ID: 2, StepType: StepTypeEvaluation, StepConfig: StepConfig{VisType: "pie"}})
		}, "visType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := validTemplate()
			tt.mutate(tp)
			err := tp.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestRelaxedDefault(t *testing.T) {
	var cfg StepConfig
	if !cfg.Relaxed() {
		t.Fatal("expected relaxed by default")
	}
	strict := false
	cfg.IsRelaxed = &strict
	if cfg.Relaxed() {
		t.Fatal("expected strict when isRelaxed is false")
	}
}
