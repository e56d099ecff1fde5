package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/steps"
	"github.com/systemstart/guidedstats/pkg/store"
	"github.com/systemstart/guidedstats/pkg/workflow"
)

var (
	errNotFound   = errors.New("not found")
	errBadRequest = errors.New("bad request")
)

// CreateSessionRequest starts a session from a template and a CSV dataset.
// Spec takes precedence over Template.
type CreateSessionRequest struct {
	Template    string        `json:"template"`
	Spec        *api.Template `json:"spec,omitempty"`
	DatasetName string        `json:"datasetName"`
	Data        string        `json:"data"`
	Seed        *uint64       `json:"seed,omitempty"`
}

// DatasetRequest replaces the dataset of a session.
type DatasetRequest struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// AddStepRequest inserts a step into the pipeline of a session. Position -1
// appends.
type AddStepRequest struct {
	StepType   string         `json:"stepType"`
	Position   int            `json:"position"`
	StepConfig api.StepConfig `json:"stepConfig"`
}

// SessionResponse carries the snapshot of a session and, after an edit, the
// changes that were applied.
type SessionResponse struct {
	ID      string            `json:"id"`
	Info    *api.WorkflowInfo `json:"info"`
	Changes []workflow.Change `json:"changes,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	respondJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, workflow.ErrStepOutOfRange),
		errors.Is(err, workflow.ErrInvalidJump),
		errors.Is(err, workflow.ErrSnapshotShape),
		errors.Is(err, api.ErrNotRoundTrippable),
		errors.Is(err, steps.ErrUnknownStepType):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrMissingDependency):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %w", errBadRequest, err)
	}
	return nil
}

func parseCSV(data string) (*frame.Frame, error) {
	f, err := frame.ReadCSV(strings.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return f, nil
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := s.templates()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, all)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}

	tpl := req.Spec
	if tpl != nil {
		if err := tpl.Validate(); err != nil {
			respondError(w, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
	} else {
		var err error
		if tpl, err = s.findTemplate(req.Template); err != nil {
			respondError(w, err)
			return
		}
	}
	data, err := parseCSV(req.Data)
	if err != nil {
		respondError(w, err)
		return
	}
	name := req.DatasetName
	if name == "" {
		name = "dataset"
	}
	seed := newSeed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	sess, err := s.start(r.Context(), tpl, name, data, seed)
	if err != nil {
		respondError(w, err)
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	respondJSON(w, http.StatusCreated, SessionResponse{ID: sess.id, Info: sess.wf.Info()})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Store.ListSessions(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// withSession resolves the session of the request and runs fn while holding
// its lock.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*session)) {
	sess, err := s.session(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	fn(sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) {
		respondJSON(w, http.StatusOK, SessionResponse{ID: sess.id, Info: sess.wf.Publish()})
	})
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	var in api.WorkflowInfo
	if err := decode(r, &in); err != nil {
		respondError(w, err)
		return
	}
	s.withSession(w, r, func(sess *session) {
		changes, err := s.apply(r.Context(), sess, &in)
		resp := SessionResponse{ID: sess.id, Info: sess.wf.Info(), Changes: changes}
		if err != nil {
			resp.Error = err.Error()
			respondJSON(w, statusFor(err), resp)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.cfg.Store.DeleteSession(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	s.forget(id)
	slog.Info("session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) importDataset(w http.ResponseWriter, r *http.Request) {
	var req DatasetRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	data, err := parseCSV(req.Data)
	if err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" {
		req.Name = "dataset"
	}
	s.withSession(w, r, func(sess *session) {
		if err := sess.wf.ImportDataset(req.Name, data); err != nil {
			respondError(w, err)
			return
		}
		if err := s.cfg.Store.SaveDataset(r.Context(), sess.id, req.Name, data); err != nil {
			respondError(w, err)
			return
		}
		if err := s.persist(r.Context(), sess); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, SessionResponse{ID: sess.id, Info: sess.wf.Info()})
	})
}

func (s *Server) addStep(w http.ResponseWriter, r *http.Request) {
	var req AddStepRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	s.withSession(w, r, func(sess *session) {
		pos := req.Position
		if pos == workflow.LastPosition {
			pos = sess.wf.Len()
		}
		if err := sess.wf.AddStep(req.StepType, pos, req.StepConfig); err != nil {
			respondError(w, err)
			return
		}

		// Replay needs the stored template to have the same shape.
		tpl := *sess.tpl
		tpl.Steps = slices.Insert(slices.Clone(sess.tpl.Steps), pos, api.StepTemplate{
			StepType:   req.StepType,
			StepConfig: req.StepConfig,
		})
		for i := range tpl.Steps {
			tpl.Steps[i].ID = i
		}
		if err := s.cfg.Store.UpdateTemplate(r.Context(), sess.id, &tpl); err != nil {
			respondError(w, err)
			return
		}
		sess.tpl = &tpl

		if err := s.persist(r.Context(), sess); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, SessionResponse{ID: sess.id, Info: sess.wf.Info()})
	})
}

// exportCode renders the reached steps as code, or steps from..to when both
// query parameters are given.
func (s *Server) exportCode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.withSession(w, r, func(sess *session) {
		var (
			code string
			err  error
		)
		if q.Has("from") || q.Has("to") {
			from, ferr := strconv.Atoi(q.Get("from"))
			to, terr := strconv.Atoi(q.Get("to"))
			if ferr != nil || terr != nil {
				respondError(w, fmt.Errorf("%w: from and to must both be step indexes", errBadRequest))
				return
			}
			code, err = sess.wf.ExportRange(from, to)
		} else {
			code, err = sess.wf.ExportCode()
		}
		if err != nil {
			respondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/x-python; charset=utf-8")
		_, _ = w.Write([]byte(code))
	})
}

func (s *Server) renderSuggestion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := strconv.Atoi(vars["step"])
	if err != nil {
		respondError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	s.withSession(w, r, func(sess *session) {
		rendered, err := sess.wf.RenderSuggestion(idx, vars["name"], r.URL.Query().Get("col"))
		if err != nil {
			if !errors.Is(err, workflow.ErrStepOutOfRange) {
				err = fmt.Errorf("%w: %w", errNotFound, err)
			}
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rendered)
	})
}
