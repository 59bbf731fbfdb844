package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/scry-tasks/internal/api/shared"
	"github.com/phrazzld/scry-tasks/internal/task"
	"github.com/phrazzld/scry-tasks/internal/wire"
)

// wsConn adapts a websocket connection to session.Conn. Every write carries
// a deadline so that one stalled client cannot hold up the dispatcher.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WebSocketHandler serves GET /ws. Each connection becomes a session in the
// registry; lifecycle events reach it through the registry, and direct
// replies (status, pong, errors) are sent through the registry as well so
// that all writes to a connection are serialized in one place.
type WebSocketHandler struct {
	tasks        TaskService
	sessions     SessionRegistry
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(
	tasks TaskService,
	sessions SessionRegistry,
	writeTimeout time.Duration,
	logger *slog.Logger,
) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		tasks:    tasks,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "ws_handler"),
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the client
// goes away.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		h.logger.Debug("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(shared.MaxBodyBytes)

	id := h.sessions.Register(&wsConn{conn: conn, writeTimeout: h.writeTimeout})
	log := h.logger.With("session_id", id)
	log.Info("client connected", "remote_addr", r.RemoteAddr)

	defer func() {
		h.sessions.Unregister(id)
		log.Info("client disconnected")
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}
		h.sessions.Touch(id)
		h.handleMessage(ctx, id, data, log)
	}
}

// handleMessage answers one inbound message. A successful task_request is
// acknowledged by the dispatcher's task_created event, not here.
func (h *WebSocketHandler) handleMessage(ctx context.Context, id string, data []byte, log *slog.Logger) {
	msg, err := wire.Parse(data)
	if err != nil {
		log.Debug("malformed message", "error", err)
		h.send(id, wire.NewError(GetSafeErrorMessage(err)), log)
		return
	}

	switch m := msg.(type) {
	case *wire.TaskRequest:
		req := CreateTaskRequest{Content: m.Content, Priority: m.Priority, Category: m.Category}
		if err := shared.ValidateRequest(req); err != nil {
			log.Debug("invalid task request", "error", err)
			h.send(id, wire.NewError(SanitizeValidationError(err)), log)
			return
		}
		_, err := h.tasks.Enqueue(ctx, task.Request{
			Content:   m.Content,
			Priority:  m.Priority,
			Category:  m.Category,
			SessionID: id,
		})
		if err != nil {
			if MapErrorToStatusCode(err) >= http.StatusInternalServerError {
				log.Error("failed to enqueue task", "error", err)
			}
			h.send(id, wire.NewError(GetSafeErrorMessage(err)), log)
		}

	case *wire.StatusRequest:
		snap, err := h.tasks.Status(ctx)
		if err != nil {
			log.Error("failed to read status", "error", err)
			h.send(id, wire.NewError(GetSafeErrorMessage(err)), log)
			return
		}
		h.send(id, BuildStatus(snap, h.sessions.Count()), log)

	case *wire.Ping:
		h.send(id, wire.NewPong(time.Now().UnixMilli()), log)
	}
}

func (h *WebSocketHandler) send(id string, msg interface{}, log *slog.Logger) {
	data, err := wire.Encode(msg)
	if err != nil {
		log.Error("failed to encode reply", "error", err)
		return
	}
	if err := h.sessions.Send(id, data); err != nil {
		log.Debug("failed to send reply", "error", err)
	}
}
