package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"seqsync/internal/engine"
	"seqsync/internal/model"
)

const maxEntryBytes = 1024

// Server exposes the sync controller's command surface over HTTP.
type Server struct {
	ctrl     *engine.SyncController
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

var _ ServerInterface = (*Server)(nil)

// NewServer wires the handlers into a router with request logging and a
// health check.
func NewServer(ctrl *engine.SyncController, log *logrus.Entry) http.Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		ctrl: ctrl,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := chi.NewRouter()
	r.Use(requestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return HandlerWithOptions(s, ChiServerOptions{
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, http.StatusBadRequest, err.Error())
		},
	})
}

func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateView(s.ctrl.Snapshot()))
}

func (s *Server) GetLog(w http.ResponseWriter, r *http.Request, params GetLogParams) {
	since := engine.FirstSeqno
	if params.Since != nil {
		since = *params.Since
	}
	entries := s.ctrl.Snapshot().Backend.Log(since)
	if entries == nil {
		entries = []model.FieldEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) PutObjectField(w http.ResponseWriter, r *http.Request, namespace string, key string) {
	var body PutObjectFieldJSONBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEntryBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !validToken(namespace) || !validToken(key) || !validToken(body.Value) {
		writeError(w, http.StatusBadRequest, "namespace, key and value must match [a-z]+")
		return
	}
	s.dispatch(w, r, model.Put(namespace, key, body.Value))
}

// SubmitEntry accepts the dashboard's raw text input. Malformed input is
// dropped without dispatching anything.
func (s *Server) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEntryBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	cmd, ok := ParseEntry(string(raw))
	if !ok {
		s.log.WithField("input", string(raw)).Debug("dropping malformed entry")
		writeJSON(w, http.StatusOK, commandResponse{Dispatched: false})
		return
	}
	s.dispatch(w, r, cmd)
}

func (s *Server) RunCommand(w http.ResponseWriter, r *http.Request, command string) {
	kind, err := model.ParseCommandKind(command)
	if err != nil || kind == model.PUT {
		writeError(w, http.StatusNotFound, "unknown command "+command)
		return
	}
	s.dispatch(w, r, model.Command{Kind: kind})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, cmd model.Command) {
	out, state, err := s.ctrl.Dispatch(r.Context(), cmd)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrControllerClosed) || errors.Is(err, engine.ErrEnqueueTimeout) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.log.WithError(err).WithField("command", cmd.String()).Warn("dispatch failed")
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newCommandResponse(out, state))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}
