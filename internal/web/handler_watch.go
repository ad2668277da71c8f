package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type journalSnapshot struct {
	Discoveries []discoveryResponse `json:"discoveries"`
	Error       string              `json:"error,omitempty"`
}

// handleWatchDiscoveries upgrades to a WebSocket and pushes the journal
// (optionally filtered by ?q=) every time it changes.
func (s *Server) handleWatchDiscoveries(w http.ResponseWriter, r *http.Request) {
	u := s.requireUser(w)
	if u == nil {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer closeWithLog(conn, "journal websocket", s.logger)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump only handles control frames; it cancels the stream when
	// the client goes away.
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	results := s.journal.Watch(ctx, u.ID, r.URL.Query().Get("q"))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case res, ok := <-results:
			if !ok {
				return
			}
			snap := journalSnapshot{Discoveries: toDiscoveryList(res.Value)}
			if res.Err != nil {
				s.logger.Error("journal watch failed", "user_id", u.ID, "error", res.Err)
				snap = journalSnapshot{Error: "failed to load discoveries"}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}
