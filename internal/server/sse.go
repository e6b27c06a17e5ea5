package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jpalmerr/pulsecast/internal/hub"
)

// snapshot returns the events a new observer receives before live updates:
// the current metrics followed by one endpoint event per endpoint.
func (s *Server) snapshot() []hub.Event {
	eps := s.mon.Endpoints()
	events := make([]hub.Event, 0, len(eps)+1)
	events = append(events, hub.NewEvent(hub.KindMetrics, s.mon.Metrics()))
	for _, ep := range eps {
		events = append(events, hub.NewEvent(hub.KindEndpoint, ep))
	}
	return events
}

// handleSSE streams hub events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked write would prevent the
// handler from detecting context cancellation or subscription closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// some ResponseWriter implementations have no write deadlines
	deadlinesSupported := true

	writeAndFlush := func(e hub.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			s.logger.Error("failed to encode sse event", "type", e.Type, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before the snapshot so no update falls between the two
	sub := s.hub.Subscribe(s.mon.Topic())
	defer s.hub.Unsubscribe(sub)

	for _, e := range s.snapshot() {
		if err := writeAndFlush(e); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeAndFlush(e); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
