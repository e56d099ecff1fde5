package steps

import (
	"fmt"
	"slices"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/export"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
)

// VariableSelectionStep lets the user pick columns of the dataset, or split a
// sample by a categorical column.
type VariableSelectionStep struct {
	*Base
	variableType string
	variableNum  int
	candidateNum int
	compare      bool
	metricName   string
	metric       stats.MetricFunc
	category     bool
}

// NewVariableSelectionStep creates a VariableSelectionStep.
func NewVariableSelectionStep(tpl api.StepTemplate) (Step, error) {
	cfg := tpl.StepConfig
	variableType := cfg.VariableType
	if variableType == "" {
		variableType = api.VariableSingle
	}
	outputs := []string{"selection"}
	if variableType == api.VariableGroup {
		outputs = []string{"group1", "group2"}
	}
	initial := api.Config{"variableType": variableType}
	if cfg.VariableNum > 0 {
		initial["variableNum"] = cfg.VariableNum
	}
	if cfg.Compare {
		initial["metric"] = cfg.MetricName
	}
	b, err := newBase(tpl, "Variable Selection", []string{"dataset"}, outputs, initial)
	if err != nil {
		return nil, err
	}
	b.UserKeys = []string{"variableResults", "groupResults"}

	s := &VariableSelectionStep{
		Base:         b,
		variableType: variableType,
		variableNum:  cfg.VariableNum,
		candidateNum: cfg.CandidateNum,
		compare:      cfg.Compare,
		metricName:   cfg.MetricName,
		category:     cfg.RequireVarCategory,
	}
	if s.compare {
		if s.metric, err = stats.Metric(cfg.MetricName); err != nil {
			return nil, fmt.Errorf("step %d: %w", tpl.ID, err)
		}
	}
	if s.grouping() && len(s.OutputNames) != 2 {
		return nil, fmt.Errorf("step %d: a group variable selection needs two outputs", tpl.ID)
	}
	return s, nil
}

func (s *VariableSelectionStep) grouping() bool { return s.variableType == api.VariableGroup }

// Forward publishes the selectable columns.
func (s *VariableSelectionStep) Forward(inputs Values) error {
	s.Inputs = inputs
	df, err := s.frameInput(0)
	if err != nil {
		return err
	}
	ref, err := s.optionalFrameInput(1)
	if err != nil {
		return err
	}

	var exclude []string
	if ref != nil {
		exclude = ref.Columns()
	}

	if s.compare && ref != nil {
		pool, err := df.Merge(ref)
		if err != nil {
			pool = df
		}
		candidates, err := Compare(s.metric, pool, df.Columns(), s.candidateNum, exclude...)
		if err != nil {
			return s.report(fmt.Errorf("%w: %v", stats.ErrInvalidData, err))
		}
		if err := s.ChangeConfig("referenceVariables", exclude); err != nil {
			return err
		}
		return s.ChangeConfig("variableCandidates", candidates)
	}

	var candidates []Candidate
	for _, col := range df.Columns() {
		if slices.Contains(exclude, col) || !s.eligible(df, col) {
			continue
		}
		candidates = append(candidates, Candidate{Name: col})
	}
	if s.candidateNum > 0 && len(candidates) > s.candidateNum {
		candidates = candidates[:s.candidateNum]
	}
	return s.ChangeConfig("variableCandidates", candidates)
}

func (s *VariableSelectionStep) eligible(df *frame.Frame, col string) bool {
	if !s.grouping() {
		return df.IsNumeric(col)
	}
	if !s.category {
		return true
	}
	if df.IsNumeric(col) {
		return false
	}
	levels, err := df.Unique(col)
	return err == nil && len(levels) >= 2
}

// OnConfigChange selects as soon as variableResults (and groupResults for a
// split) are present.
func (s *VariableSelectionStep) OnConfigChange(old, new api.Config) error {
	if !s.changed(old, new, "variableResults", "groupResults") {
		return nil
	}
	return s.report(s.selectVariables())
}

// Execute selects with the current config.
func (s *VariableSelectionStep) Execute() error {
	return s.report(s.selectVariables())
}

func (s *VariableSelectionStep) selectVariables() error {
	names := s.Config.Names("variableResults")
	if len(names) == 0 || s.Inputs == nil {
		return nil
	}
	if s.variableNum > 0 && len(names) > s.variableNum {
		return fmt.Errorf("%w: at most %d variable(s) can be selected, got %d", stats.ErrInvalidData, s.variableNum, len(names))
	}
	df, err := s.frameInput(0)
	if err != nil {
		return err
	}
	if s.grouping() {
		return s.split(df, names[0])
	}

	subset, err := df.Select(names...)
	if err != nil {
		return err
	}
	if _, err := subset.Matrix(); err != nil {
		return err
	}
	outputs := Values{s.OutputNames[0]: subset}
	if s.variableType == api.VariableIndependent {
		outputs["exog"] = subset
	}
	return s.complete(outputs)
}

func (s *VariableSelectionStep) split(df *frame.Frame, groupCol string) error {
	levels, err := df.Unique(groupCol)
	if err != nil {
		return err
	}
	candidates := make([]Candidate, len(levels))
	for i, l := range levels {
		candidates[i] = Candidate{Name: l}
	}
	if err := s.changeGroupConfig("groupCandidates", candidates); err != nil {
		return err
	}

	groups := s.Config.Names("groupResults")
	if len(groups) < 2 {
		return nil
	}
	if len(groups) > 2 {
		return fmt.Errorf("%w: exactly two groups can be compared, got %d", stats.ErrInvalidData, len(groups))
	}

	source, err := s.optionalFrameInput(1)
	if err != nil {
		return err
	}
	if source == nil {
		source = df
	}
	parts := make([]*frame.Frame, 2)
	for i, g := range groups {
		labels, err := df.Where(groupCol, g)
		if err != nil {
			return err
		}
		if len(labels) == 0 {
			return fmt.Errorf("%w: group %q of %q is empty", stats.ErrInvalidData, g, groupCol)
		}
		parts[i] = source.Subset(labels)
	}
	return s.complete(Values{s.OutputNames[0]: parts[0], s.OutputNames[1]: parts[1]})
}

// SuggestionData returns the values the suggestions of this step render with.
func (s *VariableSelectionStep) SuggestionData(_ string) map[string]any {
	data := map[string]any{}
	if s.grouping() && s.Done {
		if names := s.Config.Names("variableResults"); len(names) > 0 {
			data["separator"] = names[0]
		}
		data["groups"] = s.Config.Names("groupResults")
		if a, ok := s.Outputs[s.OutputNames[0]].(*frame.Frame); ok {
			data["N1"] = a.Len()
			if a.Width() > 0 {
				data["col"] = a.Columns()[0]
			}
		}
		if b, ok := s.Outputs[s.OutputNames[1]].(*frame.Frame); ok {
			data["N2"] = b.Len()
		}
	}
	return data
}

// Export renders the selection code.
func (s *VariableSelectionStep) Export() (string, error) {
	data := map[string]any{
		"stepName":    s.Name,
		"outputNames": s.OutputNames,
		"columns":     s.Config.Names("variableResults"),
		"exog":        s.variableType == api.VariableIndependent,
	}
	if s.grouping() {
		names := s.Config.Names("variableResults")
		if len(names) > 0 {
			data["groupColumn"] = names[0]
		}
		data["groups"] = s.Config.Names("groupResults")
		data["source"] = "dataset"
		if len(s.InputNames) > 1 {
			data["source"] = s.InputNames[1]
		}
	}
	return export.Render(s.Type, data)
}
