package export

import (
	"fmt"
	"maps"
	"slices"
)

const (
	ActionCode    = "code"
	ActionUI      = "UI"
	ActionMessage = "message"
)

// Action describes what a suggestion does when the user picks it.
type Action struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	SearchKey string `json:"searchKey,omitempty"`
}

// Rendered is the outcome of a suggestion: code to insert, a message to
// show, or the config key of a UI control to reveal.
type Rendered struct {
	Action
	Text string `json:"text,omitempty"`
}

var actions = map[string]Action{
	"remove_outliers":      {Name: "remove_outliers", Type: ActionCode},
	"transform_outliers":   {Name: "transform_outliers", Type: ActionCode},
	"investigate_outliers": {Name: "investigate_outliers", Type: ActionCode},
	"perform_VIF":          {Name: "perform_VIF", Type: ActionCode},
	"use_mann_whitney":     {Name: "use_mann_whitney", Type: ActionCode},
	"set_equal_variance":   {Name: "set_equal_variance", Type: ActionUI, SearchKey: "equal_var"},
	"print_group_size":     {Name: "print_group_size", Type: ActionMessage},
}

// LookupAction returns the named suggestion action.
func LookupAction(name string) (Action, error) {
	a, ok := actions[name]
	if !ok {
		return Action{}, fmt.Errorf("%w: action %q", ErrUnknownTemplate, name)
	}
	return a, nil
}

// ActionNames lists the known suggestions.
func ActionNames() []string {
	return slices.Sorted(maps.Keys(actions))
}

// RenderAction fills the suggestion template with data. UI actions carry no
// text, only the config key to reveal.
func RenderAction(name string, data map[string]any) (*Rendered, error) {
	a, err := LookupAction(name)
	if err != nil {
		return nil, err
	}
	out := &Rendered{Action: a}
	if a.Type == ActionUI {
		return out, nil
	}
	ctx := map[string]any{"workflow": WorkflowVariable}
	maps.Copy(ctx, data)
	if out.Text, err = Render(name, ctx); err != nil {
		return nil, err
	}
	return out, nil
}
