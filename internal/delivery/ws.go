package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader matches the teacher's silence_ws.go upgrader: origin checking is
// the framing layer's job (§1 out of scope), so the Delivery Plane accepts
// whatever already reached it.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConnection adapts a *websocket.Conn to the Plane's Connection
// interface. Grounded on the teacher's WebSocketHub per-client write path
// (cmd/server/handlers/silence_ws.go: sendToClient), with a mutex added
// because gorilla/websocket forbids concurrent writers on one connection
// and both the broadcast goroutine and the pong/ping pump write here.
type wsConnection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConnection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *wsConnection) close() error {
	return c.conn.Close()
}

// ServeSession upgrades r to a WebSocket connection for sessionID, attaches
// it to the Plane, and pumps messages until the client disconnects or ctx
// ends. Matching §4.5: connect registers and pushes connected+state_sync;
// keep-alive pings every KeepaliveInterval and closes on a missed pong;
// disconnect unregisters with no retained per-client state.
func (p *Plane) ServeSession(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID string) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Error("delivery: websocket upgrade failed", "error", err, "session_id", sessionID)
		return
	}
	conn := &wsConnection{conn: raw}

	if err := p.Attach(ctx, sessionID, conn); err != nil {
		p.logger.Warn("delivery: attach failed, closing connection", "error", err, "session_id", sessionID)
		conn.close()
		return
	}
	defer func() {
		p.Detach(sessionID, conn)
		conn.close()
	}()

	p.readPump(ctx, raw, conn, sessionID)
}

// readPump handles keep-alive (server-initiated pings, client pong
// resetting the read deadline) and the two client-initiated message types:
// ping (answered with an explicit pong message, distinct from the
// protocol-level WebSocket pong frame) and request_sync.
func (p *Plane) readPump(ctx context.Context, raw *websocket.Conn, conn *wsConnection, sessionID string) {
	deadline := p.keepalive * 2
	raw.SetReadDeadline(time.Now().Add(deadline))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go p.pingLoop(raw, done)

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		var incoming Message
		if err := json.Unmarshal(data, &incoming); err != nil {
			_ = conn.Send(newErrorMessage("malformed message", time.Now()))
			continue
		}
		switch incoming.Type {
		case MessagePing:
			_ = p.Pong(conn)
		case MessageRequestSync:
			_ = p.Resync(ctx, sessionID, conn)
		default:
			_ = conn.Send(newErrorMessage("unknown message type", time.Now()))
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (p *Plane) pingLoop(raw *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(p.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			raw.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := raw.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

