package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/workflow"
)

// Websocket message types.
const (
	messageInfo   = "info"
	messageUpdate = "update"
	messageError  = "error"
)

// message is exchanged over a session websocket. The server sends "info"
// after every change and "error" when an update failed; the client sends
// "update" with its edited snapshot.
type message struct {
	Type    string            `json:"type"`
	Info    *api.WorkflowInfo `json:"info,omitempty"`
	Changes []workflow.Change `json:"changes,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// watcher is one websocket connection. Writes are serialized by mu.
type watcher struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *watcher) send(m message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(m)
}

// broadcast sends m to every watcher. Callers hold sess.mu.
func (sess *session) broadcast(m message) {
	for w := range sess.watchers {
		if err := w.send(m); err != nil {
			slog.Debug("dropping watcher", "session", sess.id, "error", err)
			_ = w.conn.Close()
			delete(sess.watchers, w)
		}
	}
}

func (sess *session) closeWatchers() {
	for w := range sess.watchers {
		_ = w.conn.Close()
		delete(sess.watchers, w)
	}
}

func (s *Server) watch(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session", sess.id, "error", err)
		return
	}
	defer conn.Close()
	ctx := context.WithoutCancel(r.Context())

	wt := &watcher{conn: conn}
	sess.mu.Lock()
	sess.watchers[wt] = struct{}{}
	err = wt.send(message{Type: messageInfo, Info: sess.wf.Publish()})
	sess.mu.Unlock()
	if err != nil {
		return
	}
	defer func() {
		sess.mu.Lock()
		delete(sess.watchers, wt)
		sess.mu.Unlock()
	}()

	for {
		var in message
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket error", "session", sess.id, "error", err)
			}
			return
		}
		if in.Type != messageUpdate || in.Info == nil {
			_ = wt.send(message{Type: messageError, Error: "expected an update with a snapshot"})
			continue
		}

		sess.mu.Lock()
		changes, err := s.apply(ctx, sess, in.Info)
		if err != nil {
			_ = wt.send(message{Type: messageError, Info: sess.wf.Info(), Changes: changes, Error: err.Error()})
		}
		sess.mu.Unlock()
	}
}
