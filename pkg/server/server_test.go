package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/store"
	"github.com/systemstart/guidedstats/pkg/workflow"
)

func housesCSV(scale float64) string {
	var b strings.Builder
	b.WriteString("price,rooms,area,city\n")
	for i := range 40 {
		rooms := float64(1 + i%5)
		area := float64(30 + 7*i)
		price := (50 + 20*rooms + 1.5*area + float64(i%3)) * scale
		fmt.Fprintf(&b, "%g,%g,%g,%s\n", price, rooms, area, []string{"north", "south"}[i%2])
	}
	return b.String()
}

func openStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(dir, "guidedstats.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(Config{Store: openStore(t, t.TempDir()), MaxDepth: -1})
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return resp
}

func createRegression(t *testing.T, s *Server) SessionResponse {
	t.Helper()
	seed := uint64(7)
	rec := do(t, s, http.MethodPost, "/sessions", CreateSessionRequest{
		Template:    "linear-regression",
		DatasetName: "houses",
		Data:        housesCSV(1),
		Seed:        &seed,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /sessions = %d: %s", rec.Code, rec.Body.String())
	}
	return decodeSession(t, rec)
}

// selectPrice edits the snapshot the way a renderer would: pick the
// dependent variable of step 1.
func selectPrice(info *api.WorkflowInfo) *api.WorkflowInfo {
	in := info.Clone()
	if in.Steps[1].Config == nil {
		in.Steps[1].Config = api.Config{}
	}
	in.Steps[1].Config["variableResults"] = []any{map[string]any{"name": "price"}}
	return in
}

func TestCreateAndEditSession(t *testing.T) {
	s := newTestServer(t)
	created := createRegression(t, s)
	if created.ID == "" || created.Info.CurrentStepID != 1 {
		t.Fatalf("unexpected session %+v", created)
	}

	rec := do(t, s, http.MethodGet, "/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeSession(t, rec)

	rec = do(t, s, http.MethodPut, "/sessions/"+created.ID, selectPrice(got.Info))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", rec.Code, rec.Body.String())
	}
	edited := decodeSession(t, rec)
	want := []workflow.Change{{Field: workflow.FieldConfig, Step: 1}}
	if !slices.Equal(edited.Changes, want) {
		t.Fatalf("changes = %v, want %v", edited.Changes, want)
	}
	if edited.Info.CurrentStepID != 2 {
		t.Fatalf("expected step 2 active, got %d", edited.Info.CurrentStepID)
	}

	// sending the same snapshot again changes nothing
	rec = do(t, s, http.MethodPut, "/sessions/"+created.ID, selectPrice(edited.Info))
	if again := decodeSession(t, rec); len(again.Changes) != 0 || again.Info.CurrentStepID != 2 {
		t.Fatalf("repeated edit = %+v", again)
	}

	rec = do(t, s, http.MethodGet, "/sessions/"+created.ID+"/export", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# houses") {
		t.Fatalf("export = %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodGet, "/sessions/"+created.ID+"/export?from=3&to=2", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty export range = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/sessions", nil)
	var list []store.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("GET /sessions = %v", list)
	}
}

func TestSessionRestoredFromStore(t *testing.T) {
	dir := t.TempDir()
	first := New(Config{Store: openStore(t, dir)})
	created := createRegression(t, first)
	rec := do(t, first, http.MethodPut, "/sessions/"+created.ID, selectPrice(created.Info))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, first, http.MethodPost, "/sessions/"+created.ID+"/steps", AddStepRequest{
		StepType:   api.StepTypeEvaluation,
		Position:   workflow.LastPosition,
		StepConfig: api.StepConfig{StepName: "Evaluate Again"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST steps = %d: %s", rec.Code, rec.Body.String())
	}
	first.Close()

	second := New(Config{Store: openStore(t, dir)})
	t.Cleanup(second.Close)
	rec = do(t, second, http.MethodGet, "/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET after restart = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeSession(t, rec)
	if got.Info.CurrentStepID != 2 {
		t.Fatalf("expected step 2 active after replay, got %d", got.Info.CurrentStepID)
	}
	if len(got.Info.Steps) != 10 || got.Info.Steps[9].StepName != "Evaluate Again" {
		t.Fatalf("added step was not restored: %d steps", len(got.Info.Steps))
	}
	if names := got.Info.Steps[1].Config.Names("variableResults"); len(names) != 1 || names[0] != "price" {
		t.Fatalf("choice was not restored: %v", got.Info.Steps[1].Config)
	}
}

func TestConcurrentRestoreSharesSession(t *testing.T) {
	dir := t.TempDir()
	first := New(Config{Store: openStore(t, dir)})
	created := createRegression(t, first)
	first.Close()

	second := New(Config{Store: openStore(t, dir)})
	t.Cleanup(second.Close)
	got := make([]*session, 8)
	var wg sync.WaitGroup
	for i := range got {
		wg.Go(func() {
			sess, err := second.session(t.Context(), created.ID)
			if err != nil {
				t.Error(err)
				return
			}
			got[i] = sess
		})
	}
	wg.Wait()
	for i, sess := range got {
		if sess == nil || sess != got[0] {
			t.Fatalf("lookup %d returned a different session", i)
		}
	}
}

func TestFailedStartIsNotStored(t *testing.T) {
	s := newTestServer(t)
	broken := &api.Template{Name: "broken", Steps: []api.StepTemplate{
		{StepType: api.StepTypeLoadDataset},
		{StepType: api.StepTypeVariableSelection, StepConfig: api.StepConfig{InputNames: []string{"Z"}}},
	}}
	rec := do(t, s, http.MethodPost, "/sessions", CreateSessionRequest{Spec: broken, Data: housesCSV(1)})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("POST /sessions = %d: %s", rec.Code, rec.Body.String())
	}

	list, err := s.cfg.Store.ListSessions(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("stored sessions = %v, want none", list)
	}
}

func TestImportDataset(t *testing.T) {
	s := newTestServer(t)
	created := createRegression(t, s)

	rec := do(t, s, http.MethodPost, "/sessions/"+created.ID+"/dataset", DatasetRequest{Name: "bigger", Data: housesCSV(3)})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST dataset = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeSession(t, rec)
	if !strings.Contains(got.Info.Message, `"bigger"`) {
		t.Fatalf("message = %q", got.Info.Message)
	}

	name, data, err := s.cfg.Store.LoadDataset(t.Context(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if name != "bigger" || data.Len() != 40 {
		t.Fatalf("stored dataset = %s with %d rows", name, data.Len())
	}

	rec = do(t, s, http.MethodPost, "/sessions/"+created.ID+"/dataset", DatasetRequest{Name: "empty", Data: ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty dataset = %d", rec.Code)
	}
}

func TestErrors(t *testing.T) {
	s := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/sessions/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET missing = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/sessions", CreateSessionRequest{Template: "anova", Data: housesCSV(1)}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown template = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/sessions", CreateSessionRequest{Spec: &api.Template{Name: "empty"}, Data: housesCSV(1)}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid inline template = %d", rec.Code)
	}

	created := createRegression(t, s)
	short := created.Info.Clone()
	short.Steps = short.Steps[:2]
	rec := do(t, s, http.MethodPut, "/sessions/"+created.ID, short)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("snapshot of the wrong shape = %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/sessions/"+created.ID+"/steps", AddStepRequest{StepType: "PlotStep", Position: 1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown step type = %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/sessions/"+created.ID+"/steps/1/suggestions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown suggestion = %d", rec.Code)
	}

	if rec := do(t, s, http.MethodDelete, "/sessions/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/sessions/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET after DELETE = %d", rec.Code)
	}
}

func TestTemplates(t *testing.T) {
	dir := t.TempDir()
	tpl := `name: pick
steps:
  - id: 0
    stepType: LoadDatasetStep
    stepConfig:
      stepName: Load
  - id: 1
    stepType: VariableSelectionStep
    stepConfig:
      stepName: Pick
      outputNames: [Y]
      variableType: variable
      variableNum: 1
`
	if err := os.WriteFile(filepath.Join(dir, "pick.guided.yaml"), []byte(tpl), 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(Config{Store: openStore(t, t.TempDir()), TemplateDir: dir, MaxDepth: -1})
	t.Cleanup(s.Close)

	rec := do(t, s, http.MethodGet, "/templates", nil)
	var all []api.Template
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	var found []string
	for _, a := range all {
		found = append(found, a.Name)
	}
	if !slices.Contains(found, "pick") || len(found) != len(api.BuiltinTemplates())+1 {
		t.Fatalf("templates = %v", found)
	}

	rec = do(t, s, http.MethodPost, "/sessions", CreateSessionRequest{Template: "pick", Data: housesCSV(1)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("session from a discovered template = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeSession(t, rec); got.Info.WorkflowName != "pick" {
		t.Fatalf("workflow name = %q", got.Info.WorkflowName)
	}

	if rec := do(t, s, http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "guidedstats_active_sessions") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("reading websocket: %v", err)
	}
	return m
}

func TestWebsocket(t *testing.T) {
	s := newTestServer(t)
	created := createRegression(t, s)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + created.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	first := readMessage(t, conn)
	if first.Type != messageInfo || first.Info.CurrentStepID != 1 {
		t.Fatalf("first message = %+v", first)
	}

	if err := conn.WriteJSON(message{Type: messageUpdate, Info: selectPrice(first.Info)}); err != nil {
		t.Fatal(err)
	}
	pushed := readMessage(t, conn)
	if pushed.Type != messageInfo || pushed.Info.CurrentStepID != 2 {
		t.Fatalf("pushed message = %+v", pushed)
	}

	// edits over HTTP reach the websocket too
	in := pushed.Info.Clone()
	in.Steps[2].IsShown = false
	if rec := do(t, s, http.MethodPut, "/sessions/"+created.ID, in); rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", rec.Code, rec.Body.String())
	}
	if m := readMessage(t, conn); m.Info == nil || m.Info.Steps[2].IsShown {
		t.Fatalf("expected the hidden step pushed, got %+v", m)
	}

	if err := conn.WriteJSON(message{Type: "hello"}); err != nil {
		t.Fatal(err)
	}
	if m := readMessage(t, conn); m.Type != messageError {
		t.Fatalf("expected an error message, got %+v", m)
	}
}
