// Package processing discovers pipeline templates and runs scripted
// sessions: a template, a dataset and a recorded list of user actions.
package processing

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/workflow"
)

// Session is the outcome of a scripted run.
type Session struct {
	Script   *api.Script
	Template *api.Template
	Workflow *workflow.Workflow
	// Applied counts the actions that ran before the session stopped.
	Applied int
}

// RunScriptFile loads a script, expands it against the global context merged
// with its own context, and runs it. Relative paths resolve against the
// directory of the script.
func RunScriptFile(filename string, globalContext map[string]any, opts ...workflow.Option) (*Session, error) {
	s, err := api.LoadScript(filename)
	if err != nil {
		return nil, err
	}
	ctx := MergeContext(globalContext, s.Context)
	if err := InterpolateScript(s, ctx); err != nil {
		return nil, fmt.Errorf("interpolating script: %w", err)
	}
	return RunScript(s, filepath.Dir(s.FilePath), opts...)
}

// RunScript builds the workflow of s and applies its actions in order. The
// session is returned along with the error of a failing action so callers
// can report how far it got.
func RunScript(s *api.Script, baseDir string, opts ...workflow.Option) (*Session, error) {
	tpl, err := resolveTemplate(s.Template, baseDir)
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}
	dataPath := resolvePath(baseDir, s.Data)
	data, err := frame.ReadCSVFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}

	name := s.DatasetName
	if name == "" {
		name = DatasetName(dataPath)
	}
	base := []workflow.Option{workflow.WithDatasetName(name)}
	if s.Seed != nil {
		base = append(base, workflow.WithSeed(*s.Seed))
	}
	w, err := workflow.New(tpl, data, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	sess := &Session{Script: s, Template: tpl, Workflow: w}
	if err := w.Start(); err != nil {
		return sess, fmt.Errorf("starting workflow: %w", err)
	}

	for i, a := range s.Actions {
		slog.Info("applying action", "script", s.FilePath, "action", i, "kind", a.Kind(), "step", a.Step)
		if err := ApplyAction(w, a, baseDir); err != nil {
			return sess, fmt.Errorf("action %d (%s): %w", i, a.Kind(), err)
		}
		sess.Applied++
		if msg := w.Message(); msg != "" {
			slog.Warn("workflow message", "script", s.FilePath, "action", i, "message", msg)
		}
	}

	slog.Info("script finished", "script", s.FilePath, "active", w.ActiveStep(), "complete", w.Complete())
	return sess, nil
}

// ApplyAction performs one scripted user action against w.
func ApplyAction(w *workflow.Workflow, a api.ScriptAction, baseDir string) error {
	switch a.Kind() {
	case api.ActionConfig:
		s, err := w.Step(a.Step)
		if err != nil {
			return err
		}
		return w.UpdateConfig(a.Step, api.MergeConfig(s.State().Config, api.Config(a.Config)))
	case api.ActionExecute:
		return w.Execute(a.Step)
	case api.ActionShow:
		return w.SetShown(a.Step, *a.Show)
	case api.ActionJump:
		return w.JumpTo(*a.Jump)
	case api.ActionAddStep:
		return w.AddStep(a.AddStep.StepType, a.AddStep.Position, a.AddStep.Config)
	case api.ActionImport:
		p := resolvePath(baseDir, a.Import)
		data, err := frame.ReadCSVFile(p)
		if err != nil {
			return err
		}
		return w.ImportDataset(DatasetName(p), data)
	}
	return fmt.Errorf("action has no kind")
}

// DatasetName derives a dataset name from a file path: the base name
// without its extension.
func DatasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func resolveTemplate(ref, baseDir string) (*api.Template, error) {
	if slices.Contains(api.BuiltinTemplates(), ref) {
		return api.BuiltinTemplate(ref)
	}
	return api.LoadTemplate(resolvePath(baseDir, ref))
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
