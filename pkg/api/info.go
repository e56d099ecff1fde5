package api

import (
	"encoding/json"
	"fmt"
)

// WorkflowInfo is the serializable snapshot mirrored between the engine and
// an external renderer.
type WorkflowInfo struct {
	WorkflowName  string     `json:"workflowName"`
	CurrentStepID int        `json:"currentStepId"`
	Message       string     `json:"message"`
	Report        string     `json:"report"`
	Steps         []StepInfo `json:"steps"`
}

// StepInfo is the observable state of one step.
type StepInfo struct {
	StepID          int      `json:"stepId"`
	StepName        string   `json:"stepName"`
	StepType        string   `json:"stepType"`
	StepExplanation string   `json:"stepExplanation"`
	Suggestions     []string `json:"suggestions"`
	Done            bool     `json:"done"`
	IsProceeding    bool     `json:"isProceeding"`
	ToExecute       bool     `json:"toExecute"`
	IsShown         bool     `json:"isShown"`
	Config          Config   `json:"config"`
	PreviousConfig  Config   `json:"previousConfig"`
	GroupConfig     Config   `json:"groupConfig"`
	Message         string   `json:"message"`
}

// DecodeInfo parses a JSON snapshot. Config values come out in normalized form.
func DecodeInfo(data []byte) (*WorkflowInfo, error) {
	var info WorkflowInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding workflow info: %w", err)
	}
	return &info, nil
}

// Clone returns a deep copy of the snapshot.
func (w *WorkflowInfo) Clone() *WorkflowInfo {
	if w == nil {
		return nil
	}
	out := *w
	out.Steps = make([]StepInfo, len(w.Steps))
	for i, s := range w.Steps {
		s.Suggestions = append([]string(nil), s.Suggestions...)
		s.Config = s.Config.Clone()
		s.PreviousConfig = s.PreviousConfig.Clone()
		s.GroupConfig = s.GroupConfig.Clone()
		out.Steps[i] = s
	}
	return &out
}
