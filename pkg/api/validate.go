package api

import (
	"fmt"
	"strings"
)

var validStepTypes = map[string]bool{
	StepTypeLoadDataset:        true,
	StepTypeVariableSelection:  true,
	StepTypeAssumptionChecking: true,
	StepTypeDataTransformation: true,
	StepTypeTrainTestSplit:     true,
	StepTypeModel:              true,
	StepTypeEvaluation:         true,
}

var validVariableTypes = map[string]bool{
	VariableDependent:   true,
	VariableIndependent: true,
	VariableGroup:       true,
	VariableSingle:      true,
}

var validVisTypes = map[string]bool{
	"":          true,
	VisResidual: true,
	VisTTest:    true,
}

// IsStepType reports whether stepType names a known step variant.
func IsStepType(stepType string) bool {
	return validStepTypes[stepType]
}

// Validate checks the template for structural errors. Named input
// dependencies are resolved when a step is activated, not here.
func (t *Template) Validate() error {
	if len(t.Steps) == 0 {
		return fmt.Errorf("template has no steps")
	}

	for i, step := range t.Steps {
		if step.ID != i {
			return fmt.Errorf("step %d: id %d does not match its position", i, step.ID)
		}
		if !validStepTypes[step.StepType] {
			return fmt.Errorf("step %d: unknown step type %q", i, step.StepType)
		}
		if err := validateStepConfig(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.StepType, err)
		}
	}

	return nil
}

func validateStepConfig(step StepTemplate) error {
	cfg := step.StepConfig
	switch step.StepType {
	case StepTypeVariableSelection:
		return validateVariableSelection(cfg)
	case StepTypeAssumptionChecking:
		if cfg.AssumptionName == "" {
			return fmt.Errorf("assumptionName is required")
		}
	case StepTypeTrainTestSplit:
		if cfg.TrainSize != nil && (*cfg.TrainSize <= 0 || *cfg.TrainSize >= 1) {
			return fmt.Errorf("trainSize must be in (0, 1), got %v", *cfg.TrainSize)
		}
	case StepTypeModel:
		for i, c := range cfg.ModelCandidates {
			if c.Name == "" {
				return fmt.Errorf("modelCandidates[%d]: name is required", i)
			}
		}
	case StepTypeEvaluation:
		if !validVisTypes[cfg.VisType] {
			return fmt.Errorf("visType %q is not valid (valid: %s, %s)", cfg.VisType, VisResidual, VisTTest)
		}
	}
	return nil
}

func validateVariableSelection(cfg StepConfig) error {
	if !validVariableTypes[cfg.VariableType] {
		valid := make([]string, 0, len(validVariableTypes))
		for k := range validVariableTypes {
			valid = append(valid, k)
		}
		return fmt.Errorf("variableType %q is not valid (valid: %s)", cfg.VariableType, strings.Join(valid, ", "))
	}
	if cfg.VariableNum < 0 || cfg.CandidateNum < 0 {
		return fmt.Errorf("variableNum and candidateNum must not be negative")
	}
	if cfg.Compare && cfg.MetricName == "" {
		return fmt.Errorf("metricName is required when compare is set")
	}
	if cfg.VariableType == VariableGroup && len(cfg.OutputNames) != 2 {
		return fmt.Errorf("a group variable selection needs exactly two outputNames")
	}
	return nil
}
