package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/MimeLyc/tiered-sub-translator/internal/eventlog"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

const (
	streamBuffer = 256
	pingInterval = 15 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced on the REST routes
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// replay sends the job's past log entries and then its live events until
// the run completes, ctx ends or send fails. ping is called when the stream
// has been idle for pingInterval.
func (s *Server) replay(ctx context.Context, jobID string, send func(eventlog.Event) error, ping func() error) error {
	events, stop, err := s.svc.Subscribe(jobID, streamBuffer)
	if err != nil {
		return err
	}
	defer stop()

	past, err := s.svc.Logs(ctx, jobID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(past))
	for i := range past {
		seen[past[i].ID] = true
		if err := send(eventlog.Event{Kind: eventlog.EventLog, Entry: &past[i]}); err != nil {
			return err
		}
	}
	if details, err := s.svc.Job(jobID); err == nil && details.Progress != nil {
		if err := send(eventlog.Event{Kind: eventlog.EventProgress, Progress: details.Progress}); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ping(); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				// Subscribed after the run completed.
				return s.sendComplete(jobID, send)
			}
			if ev.Kind == eventlog.EventLog && seen[ev.Entry.ID] {
				continue
			}
			if err := send(ev); err != nil {
				return err
			}
			if ev.Kind == eventlog.EventComplete {
				return nil
			}
		}
	}
}

func (s *Server) sendComplete(jobID string, send func(eventlog.Event) error) error {
	ev := eventlog.Event{Kind: eventlog.EventComplete}
	if details, err := s.svc.Job(jobID); err == nil && details.Summary != nil {
		ev.Summary = details.Summary
	}
	return send(ev)
}

// handleStream serves the job's events as server-sent events named after
// their kind (log, progress, complete).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := s.svc.Job(jobID); err != nil {
		writeServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev eventlog.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	ping := func() error {
		if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.replay(r.Context(), jobID, send, ping); err != nil {
		log.Debug("Stream of %s ended: %v", jobID, err)
	}
}

// handleWebsocket sends the same events as handleStream, one JSON text frame
// per event, and closes normally after the complete event.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := s.svc.Job(jobID); err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade for %s failed: %v", jobID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client never sends data; reading detects when it goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(ev eventlog.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(ev)
	}
	ping := func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
	}

	if err := s.replay(ctx, jobID, send, ping); err != nil {
		log.Debug("Websocket of %s ended: %v", jobID, err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete"),
		time.Now().Add(writeTimeout))
}
