package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/notify"
)

// streamBuffer is how many notifications a slow SSE client may lag behind
// before new ones are dropped for it.
const streamBuffer = 32

var errStreamBehind = errors.New("sse client is behind, notification dropped")

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	items := s.hub.History(limit)
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items, "count": len(items)})
}

func (s *Server) unreadNotifications(w http.ResponseWriter, r *http.Request) {
	items := s.hub.Unread()
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items, "count": len(items)})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.hub.MarkRead(id) {
		writeError(w, http.StatusNotFound, errTypeNotFound, fmt.Sprintf("notification %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	n := s.hub.MarkAllRead()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "marked": n})
}

// streamNotifications pushes every emitted notification as a server-sent
// event until the client disconnects.
func (s *Server) streamNotifications(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// the server write timeout would otherwise cut the stream
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("failed to clear write deadline", logger.Field{Key: "error", Value: err.Error()})
	}

	ch := make(chan notify.Notification, streamBuffer)
	unsubscribe := s.hub.Subscribe(notify.ObserverFunc(func(n notify.Notification) error {
		select {
		case ch <- n:
			return nil
		default:
			return errStreamBehind
		}
	}))
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 3000\n\n")
	if err := rc.Flush(); err != nil {
		s.logger.Warn("streaming not supported", logger.Field{Key: "error", Value: err.Error()})
		return
	}

	s.logger.Debug("sse client connected", logger.Field{Key: "remote", Value: r.RemoteAddr})
	defer s.logger.Debug("sse client disconnected", logger.Field{Key: "remote", Value: r.RemoteAddr})

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case n := <-ch:
			if err := writeEvent(w, n); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, n notify.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data)
	return err
}
