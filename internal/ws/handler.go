package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/etools-app/sandbox/internal/logging"
	"github.com/etools-app/sandbox/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // launcher runs on a local origin
	},
}

// Executor runs plugin executions on behalf of stream clients.
type Executor interface {
	ExecuteModule(ctx context.Context, pluginID, query string, timeout time.Duration) (protocol.ResultMessage, error)
	ExecuteCode(ctx context.Context, pluginID, code string, args []any, timeout time.Duration) (protocol.ResultMessage, error)
}

// Handler upgrades HTTP connections and attaches them to the hub. Besides
// push traffic from the hub, clients may drive executions over the stream
// with execute frames; each reply goes back on the same connection.
type Handler struct {
	hub  *Hub
	exec Executor
	log  *logging.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub, exec Executor, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{hub: hub, exec: exec, log: log.Named("ws")}
}

// HandleConnection handles WebSocket upgrade and the client lifecycle.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
	h.hub.add(cl)
	defer h.hub.remove(cl)

	// Welcome message
	cl.send <- map[string]any{
		"type":    "system",
		"message": "Connected to plugin sandbox",
	}

	go h.writeLoop(cl)

	// Read loop: pings and execute frames; anything unreadable ends the
	// connection.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		typ, err := protocol.PeekType(data)
		if err != nil {
			h.reply(cl, protocol.Failure(err.Error(), 0))
			continue
		}
		switch typ {
		case "ping":
			h.reply(cl, map[string]any{"type": "pong"})
		case protocol.TypeExecute:
			msg, err := protocol.DecodeExecute(data)
			if err != nil {
				h.reply(cl, protocol.Failure(err.Error(), 0))
				continue
			}
			go h.execute(cl, msg)
		}
	}
}

// execute dispatches one stream-initiated execution and replies on the
// client's send channel. Runs off the read loop so a slow plugin does not
// stall pings.
func (h *Handler) execute(cl *client, msg protocol.ExecuteMessage) {
	if h.exec == nil {
		h.reply(cl, protocol.Failure("execution unavailable", 0))
		return
	}

	timeout := time.Duration(msg.Timeout) * time.Millisecond
	var (
		res protocol.ResultMessage
		err error
	)
	if msg.Code != "" {
		res, err = h.exec.ExecuteCode(context.Background(), msg.PluginID, msg.Code, msg.Args, timeout)
	} else {
		res, err = h.exec.ExecuteModule(context.Background(), msg.PluginID, msg.Query, timeout)
	}
	if err != nil {
		res = protocol.Failure(err.Error(), 0)
	}
	h.reply(cl, res)
}

func (h *Handler) reply(cl *client, msg any) {
	select {
	case cl.send <- msg:
	case <-cl.done:
	}
}

func (h *Handler) writeLoop(cl *client) {
	for {
		select {
		case msg := <-cl.send:
			data, err := protocol.Encode(msg)
			if err != nil {
				h.log.Warn("dropping unencodable message", zap.Error(err))
				continue
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.remove(cl)
				return
			}
		case <-cl.done:
			return
		}
	}
}
