package workflow

import (
	"fmt"
	"log/slog"

	"github.com/systemstart/guidedstats/pkg/api"
)

// Fields of a snapshot edit, in the order Reconcile applies them.
const (
	FieldWorkflowName  = "workflowName"
	FieldCurrentStepID = "currentStepId"
	FieldMessage       = "message"
	FieldReport        = "report"
	FieldIsShown       = "isShown"
	FieldDone          = "done"
	FieldToExecute     = "toExecute"
	FieldConfig        = "config"
	FieldStepMessage   = "stepMessage"
)

// Change describes the single edit a Reconcile call applied. Step is -1 for
// workflow-level fields.
type Change struct {
	Field string `json:"field"`
	Step  int    `json:"step"`
}

func (c Change) String() string {
	if c.Step < 0 {
		return c.Field
	}
	return fmt.Sprintf("step %d %s", c.Step, c.Field)
}

// Publish returns the current snapshot and remembers it as the state the
// renderer now holds. Reconcile derives edits relative to it.
func (w *Workflow) Publish() *api.WorkflowInfo {
	info := w.Info()
	w.mirror = info.Clone()
	return info
}

// Reconcile applies the first field of in that the renderer changed since the
// last published snapshot and that still differs from the engine. It returns
// nil when there is nothing left to apply; callers repeat until then.
//
// Fields are visited in a fixed order: workflowName, currentStepId, message,
// report, then per step isShown, done, toExecute, config and message. A field
// equal to the engine value is acknowledged without counting as a change, so
// values the engine produced after publishing are never rolled back.
func (w *Workflow) Reconcile(in *api.WorkflowInfo) (*Change, error) {
	if in == nil {
		return nil, nil
	}
	if len(in.Steps) != len(w.steps) {
		return nil, fmt.Errorf("%w: snapshot has %d steps, pipeline has %d", ErrSnapshotShape, len(in.Steps), len(w.steps))
	}
	if w.mirror == nil || len(w.mirror.Steps) != len(w.steps) {
		w.mirror = w.Info()
	}
	base := w.mirror
	cur := w.Info()

	if in.WorkflowName != base.WorkflowName {
		base.WorkflowName = in.WorkflowName
		if in.WorkflowName != cur.WorkflowName {
			w.name = in.WorkflowName
			return w.applied(FieldWorkflowName, -1, nil)
		}
	}
	if in.CurrentStepID != base.CurrentStepID {
		base.CurrentStepID = in.CurrentStepID
		if in.CurrentStepID != cur.CurrentStepID {
			return w.applied(FieldCurrentStepID, -1, w.JumpTo(in.CurrentStepID))
		}
	}
	if in.Message != base.Message {
		base.Message = in.Message
		if in.Message != cur.Message {
			w.message = in.Message
			return w.applied(FieldMessage, -1, nil)
		}
	}
	if in.Report != base.Report {
		base.Report = in.Report
		if in.Report != cur.Report {
			w.report = in.Report
			return w.applied(FieldReport, -1, nil)
		}
	}

	for i := range w.steps {
		if c, err := w.reconcileStep(i, &in.Steps[i], &base.Steps[i], &cur.Steps[i]); c != nil || err != nil {
			return c, err
		}
	}
	return nil, nil
}

func (w *Workflow) reconcileStep(i int, in, base, cur *api.StepInfo) (*Change, error) {
	b := w.steps[i].State()

	if in.IsShown != base.IsShown {
		base.IsShown = in.IsShown
		if in.IsShown != cur.IsShown {
			return w.applied(FieldIsShown, i, w.SetShown(i, in.IsShown))
		}
	}
	if in.Done != base.Done {
		base.Done = in.Done
		if in.Done != cur.Done {
			if !in.Done {
				return w.applied(FieldDone, i, w.JumpTo(i))
			}
			return w.applied(FieldDone, i, w.Execute(i))
		}
	}
	if in.ToExecute != base.ToExecute {
		base.ToExecute = in.ToExecute
		if in.ToExecute && !cur.ToExecute {
			return w.applied(FieldToExecute, i, w.Execute(i))
		}
	}
	if !in.Config.Equal(base.Config) {
		edited := api.ChangedKeys(base.Config, in.Config)
		base.Config = in.Config.Clone()
		next := cur.Config.Clone()
		var differs bool
		for _, k := range edited {
			v, ok := in.Config[k]
			if !ok {
				if _, had := next[k]; had {
					delete(next, k)
					differs = true
				}
				continue
			}
			if !(api.Config{k: v}).Equal(api.Config{k: next[k]}) {
				next[k] = v
				differs = true
			}
		}
		if differs {
			return w.applied(FieldConfig, i, w.UpdateConfig(i, next))
		}
	}
	if in.Message != base.Message {
		base.Message = in.Message
		if in.Message != cur.Message {
			b.Message = in.Message
			return w.applied(FieldStepMessage, i, nil)
		}
	}
	return nil, nil
}

func (w *Workflow) applied(field string, step int, err error) (*Change, error) {
	c := &Change{Field: field, Step: step}
	w.tracker.Reconciled(field)
	slog.Debug("snapshot edit applied", "workflow", w.name, "change", c.String())
	w.updateInfo()
	if err != nil {
		return c, err
	}
	return c, nil
}

// Sync applies every edit the renderer made to base, yielding in, and
// returns the applied changes. base becomes the published snapshot.
func (w *Workflow) Sync(base, in *api.WorkflowInfo) ([]Change, error) {
	if base != nil {
		w.mirror = base.Clone()
	}
	var changes []Change
	for range maxSyncRounds(w, in) {
		c, err := w.Reconcile(in)
		if c != nil {
			changes = append(changes, *c)
		}
		if err != nil {
			return changes, err
		}
		if c == nil {
			return changes, nil
		}
	}
	return changes, fmt.Errorf("snapshot did not converge after %d edits", len(changes))
}

// maxSyncRounds bounds Sync: every field can be applied at most once.
func maxSyncRounds(w *Workflow, in *api.WorkflowInfo) int {
	n := 5
	if in != nil {
		n += len(in.Steps) * 6
	}
	return max(n, 5*len(w.steps))
}

// Replay re-drives the workflow to a stored snapshot by re-applying the user
// choices of each step in order. Values the engine derives are recomputed,
// not copied.
func (w *Workflow) Replay(info *api.WorkflowInfo) error {
	if info == nil {
		return nil
	}
	if len(info.Steps) != len(w.steps) {
		return fmt.Errorf("%w: snapshot has %d steps, pipeline has %d", ErrSnapshotShape, len(info.Steps), len(w.steps))
	}
	if err := w.Start(); err != nil {
		return err
	}
	if info.WorkflowName != "" {
		w.name = info.WorkflowName
	}
	for i, stored := range info.Steps {
		w.steps[i].State().IsShown = stored.IsShown
	}

	for i, stored := range info.Steps {
		if i > w.active {
			break
		}
		b := w.steps[i].State()
		if b.Done {
			continue
		}
		next := b.Config.Clone()
		var restored bool
		for _, k := range b.UserKeys {
			if v, ok := stored.Config[k]; ok {
				next[k] = v
				restored = true
			}
		}
		if restored {
			if err := w.UpdateConfig(i, next); err != nil {
				return fmt.Errorf("replaying step %d: %w", i, err)
			}
		}
		if !stored.Done {
			break
		}
		if !b.Done {
			if err := w.Execute(i); err != nil {
				return fmt.Errorf("replaying step %d: %w", i, err)
			}
		}
		if !b.Done {
			return fmt.Errorf("replaying step %d (%s): the stored choices no longer complete it", i, b.Type)
		}
	}
	w.updateInfo()
	return nil
}
