package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/pulsecast/internal/monitor"
)

// Inbound WebSocket actions.
const (
	actionCheckEndpoint     = "check-endpoint"
	actionCheckAllEndpoints = "check-all-endpoints"
	actionUpdatePerformance = "update-performance"
)

// Outbound control message types. Engine events reuse the hub kinds.
const (
	typeSubscribed = "monitoring-subscribed"
	typeError      = "error"
)

// wsReadLimit caps inbound command frames.
const wsReadLimit = 4096

type wsCommand struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

type wsMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type wsError struct {
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}

// handleWS upgrades the connection, streams hub events and executes check
// commands sent by the client. Results of commands reach the client through
// the events they publish.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(wsReadLimit)

	sub := s.hub.Subscribe(s.mon.Topic())
	defer s.hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// replies carries command errors to the single writer below
	replies := make(chan wsMessage, 8)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		s.readCommands(ctx, conn, replies)
	}()

	write := func(v any) error {
		if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(v)
	}

	if err := write(wsMessage{
		Type:      typeSubscribed,
		Data:      map[string]string{"topic": sub.Topic(), "subscription": sub.ID()},
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return
	}
	for _, e := range s.snapshot() {
		if err := write(e); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				s.writeClose(conn, websocket.CloseGoingAway, "shutting down")
				return
			}
			if err := write(e); err != nil {
				return
			}
		case msg := <-replies:
			if err := write(msg); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-ctx.Done():
			s.writeClose(conn, websocket.CloseGoingAway, "shutting down")
			return
		}
	}
}

// readCommands reads client commands until the connection fails or ctx is
// cancelled. Commands run synchronously, one at a time per connection.
func (s *Server) readCommands(ctx context.Context, conn *websocket.Conn, replies chan<- wsMessage) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.reply(ctx, replies, "", "invalid command")
			continue
		}

		if err := s.runCommand(ctx, cmd); err != nil {
			s.reply(ctx, replies, cmd.Action, err.Error())
		}
	}
}

func (s *Server) runCommand(ctx context.Context, cmd wsCommand) error {
	switch cmd.Action {
	case actionCheckEndpoint:
		if cmd.ID == "" {
			return errors.New("id is required")
		}
		_, err := s.mon.SingleCheck(ctx, cmd.ID)
		if errors.Is(err, monitor.ErrNotFound) {
			return errors.New("endpoint not found")
		}
		return err
	case actionCheckAllEndpoints:
		_, err := s.mon.BulkCheck(ctx)
		return err
	case actionUpdatePerformance:
		_, err := s.mon.RecordPerformance(ctx)
		return err
	default:
		return errors.New("unknown action " + cmd.Action)
	}
}

func (s *Server) reply(ctx context.Context, replies chan<- wsMessage, action, msg string) {
	select {
	case replies <- wsMessage{
		Type:      typeError,
		Data:      wsError{Action: action, Message: msg},
		Timestamp: time.Now().UTC(),
	}:
	case <-ctx.Done():
	}
}

func (s *Server) writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
