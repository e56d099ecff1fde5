package api

const (
	DefaultTemplateInclude = "**/*.guided.yaml"

	StepTypeLoadDataset        = "LoadDatasetStep"
	StepTypeVariableSelection  = "VariableSelectionStep"
	StepTypeAssumptionChecking = "AssumptionCheckingStep"
	StepTypeDataTransformation = "DataTransformationStep"
	StepTypeTrainTestSplit     = "TrainTestSplitStep"
	StepTypeModel              = "ModelStep"
	StepTypeEvaluation         = "EvaluationStep"

	VariableDependent   = "dependent variable"
	VariableIndependent = "independent variables"
	VariableGroup       = "group variable"
	VariableSingle      = "variable"

	VisResidual = "residual"
	VisTTest    = "ttest"
)

// Template is a declarative pipeline definition (.guided.yaml).
type Template struct {
	Name  string         `yaml:"name" json:"name"`
	Steps []StepTemplate `yaml:"steps" json:"steps"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-" json:"-"`
}

// StepTemplate defines a single step within a template.
type StepTemplate struct {
	ID              int        `yaml:"id" json:"id"`
	StepType        string     `yaml:"stepType" json:"stepType"`
	StepConfig      StepConfig `yaml:"stepConfig" json:"stepConfig"`
	StepExplanation string     `yaml:"stepExplanation,omitempty" json:"stepExplanation,omitempty"`
	Suggestions     []string   `yaml:"suggestions,omitempty" json:"suggestions,omitempty"`
}

// StepConfig holds the static construction parameters of a step. Only the
// fields relevant to the step type are read.
type StepConfig struct {
	StepName                  string   `yaml:"stepName" json:"stepName"`
	InputNames                []string `yaml:"inputNames,omitempty" json:"inputNames,omitempty"`
	OutputNames               []string `yaml:"outputNames,omitempty" json:"outputNames,omitempty"`
	SucceedPreviousStepOutput bool     `yaml:"succeedPreviousStepOutput,omitempty" json:"succeedPreviousStepOutput,omitempty"`

	// VariableSelectionStep
	VariableType       string `yaml:"variableType,omitempty" json:"variableType,omitempty"`
	VariableNum        int    `yaml:"variableNum,omitempty" json:"variableNum,omitempty"`
	CandidateNum       int    `yaml:"candidateNum,omitempty" json:"candidateNum,omitempty"`
	Compare            bool   `yaml:"compare,omitempty" json:"compare,omitempty"`
	MetricName         string `yaml:"metricName,omitempty" json:"metricName,omitempty"`
	RequireVarCategory bool   `yaml:"requireVarCategory,omitempty" json:"requireVarCategory,omitempty"`

	// AssumptionCheckingStep
	AssumptionName string `yaml:"assumptionName,omitempty" json:"assumptionName,omitempty"`
	IsRelaxed      *bool  `yaml:"isRelaxed,omitempty" json:"isRelaxed,omitempty"` // default true

	// DataTransformationStep
	TransformationName string `yaml:"transformationName,omitempty" json:"transformationName,omitempty"`

	// TrainTestSplitStep
	TrainSize *float64 `yaml:"trainSize,omitempty" json:"trainSize,omitempty"`
	Seed      *int64   `yaml:"seed,omitempty" json:"seed,omitempty"`

	// ModelStep
	ModelCandidates []ModelCandidate `yaml:"modelCandidates,omitempty" json:"modelCandidates,omitempty"`

	// EvaluationStep
	VisType               string   `yaml:"visType,omitempty" json:"visType,omitempty"`
	EvaluationMetricNames []string `yaml:"evaluationMetricNames,omitempty" json:"evaluationMetricNames,omitempty"`
}

// ModelCandidate is a model offered to the user by a ModelStep.
type ModelCandidate struct {
	Name       string           `yaml:"name" json:"name"`
	Parameters []ModelParameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// ModelParameter describes one tunable parameter of a model candidate.
type ModelParameter struct {
	Name        string   `yaml:"name" json:"name"`
	DisplayName string   `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	Options     []Option `yaml:"options,omitempty" json:"options,omitempty"`
}

// Option is a named choice.
type Option struct {
	Name string `yaml:"name" json:"name"`
}

// Relaxed reports whether the assumption step lets the user proceed when the
// check fails.
func (c StepConfig) Relaxed() bool {
	return c.IsRelaxed == nil || *c.IsRelaxed
}
