package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/armsd/internal/events"
)

var (
	heartbeatEvery = 15 * time.Second
	// retryMillis is the reconnect delay suggested to EventSource clients.
	retryMillis = 3000
)

// sseStream writes server-sent events and flushes after each one.
type sseStream struct {
	w io.Writer
	f http.Flusher
}

func (s sseStream) event(ev events.Event) error {
	// Payloads are single-line JSON, so one data field suffices.
	_, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
	return err
}

func (s sseStream) comment(text string) error {
	_, err := fmt.Fprintf(s.w, ": %s\n\n", text)
	return err
}

func (s sseStream) flush() { s.f.Flush() }

// handleEvents replays the backlog after Last-Event-ID, then follows the hub
// until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := sseStream{w: w, f: flusher}
	replay, live, cancel := s.events.Follow(parseLastEventID(r.Header.Get("Last-Event-ID")))
	defer cancel()

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryMillis); err != nil {
		return
	}
	for _, ev := range replay {
		if err := stream.event(ev); err != nil {
			return
		}
	}
	stream.flush()

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			err = stream.event(ev)
		case <-heartbeat.C:
			err = stream.comment("keep-alive")
		}
		if err != nil {
			s.logger.Debug("event stream closed", "error", err)
			return
		}
		stream.flush()
	}
}

// parseLastEventID treats anything but a non-negative integer as "from the
// start of the backlog".
func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
