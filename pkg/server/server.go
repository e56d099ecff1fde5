// Package server exposes analysis sessions over HTTP. A renderer reads the
// snapshot of a session, edits it and sends it back; the server reconciles
// the edit into the workflow, persists the new state and pushes it to every
// websocket watching the session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/processing"
	"github.com/systemstart/guidedstats/pkg/store"
	"github.com/systemstart/guidedstats/pkg/telemetry"
	"github.com/systemstart/guidedstats/pkg/workflow"
)

// Config configures a Server.
type Config struct {
	Store *store.Store
	// TemplateDir is searched for .guided.yaml templates in addition to the
	// built-in ones. Empty disables discovery.
	TemplateDir string
	// MaxDepth limits template discovery, -1 is unlimited.
	MaxDepth int
}

// Server serves sessions from an in-memory registry backed by the store.
type Server struct {
	cfg      Config
	router   *mux.Router
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

// session is a live workflow. mu serializes every operation on it.
type session struct {
	mu       sync.Mutex
	id       string
	tpl      *api.Template
	wf       *workflow.Workflow
	watchers map[*watcher]struct{}
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		router:   mux.NewRouter(),
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/templates", s.listTemplates).Methods(http.MethodGet)

	r.HandleFunc("/sessions", s.createSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.updateSession).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}", s.deleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/dataset", s.importDataset).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/steps", s.addStep).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/export", s.exportCode).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/steps/{step:[0-9]+}/suggestions/{name}", s.renderSuggestion).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/ws", s.watch).Methods(http.MethodGet)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Close drops every live session and disconnects its watchers.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		sess.closeWatchers()
		sess.mu.Unlock()
		delete(s.sessions, id)
		telemetry.SessionClosed()
	}
}

// templates returns the built-in templates followed by the discovered ones.
func (s *Server) templates() ([]*api.Template, error) {
	var out []*api.Template
	for _, name := range api.BuiltinTemplates() {
		tpl, err := api.BuiltinTemplate(name)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	if s.cfg.TemplateDir == "" {
		return out, nil
	}
	found, err := processing.DiscoverTemplates(s.cfg.TemplateDir, s.cfg.MaxDepth)
	if err != nil {
		return nil, err
	}
	return append(out, found...), nil
}

// findTemplate resolves a template by built-in name or by the name of a
// discovered template.
func (s *Server) findTemplate(name string) (*api.Template, error) {
	if slices.Contains(api.BuiltinTemplates(), name) {
		return api.BuiltinTemplate(name)
	}
	all, err := s.templates()
	if err != nil {
		return nil, err
	}
	for _, tpl := range all {
		if tpl.Name == name {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("%w: template %q", errNotFound, name)
}

// start creates and persists a new session.
func (s *Server) start(ctx context.Context, tpl *api.Template, datasetName string, data *frame.Frame, seed uint64) (*session, error) {
	wf, err := workflow.New(tpl, data, workflow.WithSeed(seed), workflow.WithDatasetName(datasetName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if err := wf.Start(); err != nil {
		return nil, err
	}
	stored, err := s.cfg.Store.CreateSession(ctx, tpl, seed, datasetName, data)
	if err != nil {
		return nil, err
	}
	sess := &session{id: stored.ID, tpl: tpl, wf: wf, watchers: make(map[*watcher]struct{})}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	telemetry.SessionOpened()
	slog.Info("session created", "session", sess.id, "template", tpl.Name, "dataset", datasetName)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess, s.persist(ctx, sess)
}

// session returns the live session id, rehydrating it from the store by
// replaying its latest snapshot when it is not in memory.
func (s *Server) session(ctx context.Context, id string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	wf, stored, err := Restore(ctx, s.cfg.Store, id)
	if err != nil {
		return nil, err
	}
	wf.Publish()

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess = &session{id: id, tpl: stored.Template, wf: wf, watchers: make(map[*watcher]struct{})}
	s.sessions[id] = sess
	telemetry.SessionOpened()
	slog.Info("session restored", "session", id, "active", wf.ActiveStep())
	return sess, nil
}

// Restore rebuilds the workflow of a stored session and re-drives it to its
// latest snapshot.
func Restore(ctx context.Context, st *store.Store, id string) (*workflow.Workflow, store.Session, error) {
	stored, err := st.GetSession(ctx, id)
	if err != nil {
		return nil, store.Session{}, err
	}
	datasetName, data, err := st.LoadDataset(ctx, id)
	if err != nil {
		return nil, stored, err
	}
	wf, err := workflow.New(stored.Template, data, workflow.WithSeed(stored.Seed), workflow.WithDatasetName(datasetName))
	if err != nil {
		return nil, stored, err
	}
	info, err := st.LatestSnapshot(ctx, id)
	if err != nil {
		return nil, stored, err
	}
	if info == nil {
		err = wf.Start()
	} else {
		err = wf.Replay(info)
	}
	if err != nil {
		return nil, stored, fmt.Errorf("restoring session %s: %w", id, err)
	}
	return wf, stored, nil
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	sess.mu.Lock()
	sess.closeWatchers()
	sess.mu.Unlock()
	delete(s.sessions, id)
	telemetry.SessionClosed()
}

// persist publishes the current snapshot, stores it and pushes it to the
// watchers. Callers hold sess.mu.
func (s *Server) persist(ctx context.Context, sess *session) error {
	info := sess.wf.Publish()
	if err := s.cfg.Store.SaveSnapshot(ctx, sess.id, info); err != nil {
		return err
	}
	sess.broadcast(message{Type: messageInfo, Info: info})
	return nil
}

// apply reconciles an edited snapshot into the session. The resulting
// state is persisted even when an edit fails.
func (s *Server) apply(ctx context.Context, sess *session, in *api.WorkflowInfo) ([]workflow.Change, error) {
	changes, err := sess.wf.Sync(nil, in)
	if len(changes) > 0 {
		slog.Info("snapshot applied", "session", sess.id, "changes", len(changes), "active", sess.wf.ActiveStep())
	}
	if perr := s.persist(ctx, sess); perr != nil {
		return changes, errors.Join(err, perr)
	}
	return changes, err
}

func newSeed() uint64 { return rand.Uint64() }
