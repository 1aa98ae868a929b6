package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// WatchState streams a state snapshot after every command, starting with the
// current one. The stream ends when the peer goes away or the controller stops.
func (s *Server) WatchState(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	// Reads only detect the peer closing; watchers send nothing meaningful.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case state, ok := <-updates:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "sync controller stopped"))
				return
			}
			if err := conn.WriteJSON(newStateView(state)); err != nil {
				s.log.WithError(err).Debug("watcher write failed")
				return
			}
		case <-gone:
			return
		}
	}
}
