package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "guidedstats.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New(nil,
		frame.FloatSeries("price", []float64{100, 150, 210}),
		frame.StringSeries("city", []string{"north", "south", "north"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func sampleTemplate(t *testing.T) *api.Template {
	t.Helper()
	tpl, err := api.BuiltinTemplate("t-test")
	if err != nil {
		t.Fatal(err)
	}
	return tpl
}

func TestCreateAndGetSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, sampleTemplate(t), 42, "houses", sampleFrame(t))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if created.ID == "" || created.Name != "T Test" {
		t.Fatalf("unexpected session %+v", created)
	}

	got, err := s.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Seed != 42 || len(got.Template.Steps) != len(created.Template.Steps) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected a creation time")
	}

	name, data, err := s.LoadDataset(ctx, created.ID)
	if err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}
	if name != "houses" || !data.Equal(sampleFrame(t)) {
		t.Fatalf("dataset mismatch: %s %v", name, data.Columns())
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSession() error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteSession() error = %v, want ErrNotFound", err)
	}
}

func TestSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, sampleTemplate(t), 1, "houses", sampleFrame(t))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestSnapshot(ctx, sess.ID)
	if err != nil || latest != nil {
		t.Fatalf("LatestSnapshot() before saving = %v, %v", latest, err)
	}

	for i, msg := range []string{"first", "second"} {
		info := &api.WorkflowInfo{
			WorkflowName:  "T Test",
			CurrentStepID: i + 1,
			Message:       msg,
			Steps:         []api.StepInfo{{StepID: 0, Config: api.Config{"variableResults": []any{"price"}}}},
		}
		if err := s.SaveSnapshot(ctx, sess.ID, info); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	latest, err = s.LatestSnapshot(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Message != "second" || latest.CurrentStepID != 2 {
		t.Fatalf("LatestSnapshot() = %+v", latest)
	}
	if got := latest.Steps[0].Config.Names("variableResults"); len(got) != 1 || got[0] != "price" {
		t.Fatalf("config did not survive: %v", latest.Steps[0].Config)
	}
	if n, err := s.CountSnapshots(ctx, sess.ID); err != nil || n != 2 {
		t.Fatalf("CountSnapshots() = %d, %v", n, err)
	}
}

func TestSaveDatasetAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, sampleTemplate(t), 1, "houses", sampleFrame(t))
	if err != nil {
		t.Fatal(err)
	}

	bigger, err := frame.New(nil, frame.FloatSeries("price", []float64{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDataset(ctx, sess.ID, "bigger", bigger); err != nil {
		t.Fatalf("SaveDataset() error = %v", err)
	}
	name, data, err := s.LoadDataset(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if name != "bigger" || data.Len() != 4 {
		t.Fatalf("dataset not replaced: %s with %d rows", name, data.Len())
	}

	if err := s.SaveSnapshot(ctx, sess.ID, &api.WorkflowInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, _, err := s.LoadDataset(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("dataset should be gone with the session, got %v", err)
	}
	if n, _ := s.CountSnapshots(ctx, sess.ID); n != 0 {
		t.Fatalf("snapshots should be gone with the session, got %d", n)
	}
}

func TestListSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, err := s.CreateSession(ctx, sampleTemplate(t), 1, "a", sampleFrame(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateSession(ctx, sampleTemplate(t), 2, "b", sampleFrame(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot(ctx, a.ID, &api.WorkflowInfo{}); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("expected the touched session first, got %v", list)
	}
}

func TestUpdateTemplate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, sampleTemplate(t), 1, "houses", sampleFrame(t))
	if err != nil {
		t.Fatal(err)
	}

	tpl := sess.Template
	tpl.Name = "T Test With Plot"
	tpl.Steps = append(tpl.Steps, api.StepTemplate{
		ID:         len(tpl.Steps),
		StepType:   api.StepTypeEvaluation,
		StepConfig: api.StepConfig{StepName: "Evaluate"},
	})
	if err := s.UpdateTemplate(ctx, sess.ID, tpl); err != nil {
		t.Fatalf("UpdateTemplate() error = %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "T Test With Plot" || len(got.Template.Steps) != len(tpl.Steps) {
		t.Fatalf("template not replaced: %+v", got)
	}
	if err := s.UpdateTemplate(ctx, "missing", tpl); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTemplate() on a missing session = %v", err)
	}
}
