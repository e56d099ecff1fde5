package steps

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/systemstart/guidedstats/pkg/api"
)

// ErrUnknownStepType is returned for a step type with no registered constructor.
var ErrUnknownStepType = errors.New("unknown step type")

// Constructor builds a step from its template entry.
type Constructor func(tpl api.StepTemplate) (Step, error)

var (
	registryMu   sync.RWMutex
	constructors = map[string]Constructor{
		api.StepTypeLoadDataset:        NewLoadDatasetStep,
		api.StepTypeVariableSelection:  NewVariableSelectionStep,
		api.StepTypeAssumptionChecking: NewAssumptionCheckingStep,
		api.StepTypeDataTransformation: NewDataTransformationStep,
		api.StepTypeTrainTestSplit:     NewTrainTestSplitStep,
		api.StepTypeModel:              NewModelStep,
		api.StepTypeEvaluation:         NewEvaluationStep,
	}
)

// NewStep creates a Step implementation from a template entry.
func NewStep(tpl api.StepTemplate) (Step, error) {
	registryMu.RLock()
	c, ok := constructors[tpl.StepType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, tpl.StepType)
	}
	return c(tpl)
}

// Register adds or replaces the constructor of a step type.
func Register(stepType string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	constructors[stepType] = c
}

// Types lists the registered step types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(constructors))
}
