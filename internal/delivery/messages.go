// Package delivery implements the Delivery Plane (C5): each replica's
// registry of long-lived client connections grouped by session id, pushing
// the latest state on every local or cross-replica change.
//
// Grounded on the teacher's WebSocketHub (cmd/server/handlers/silence_ws.go):
// the same gorilla/websocket upgrade, ping/pong keep-alive, and
// register/unregister-over-channels pattern, generalized from "one hub
// broadcasting to every client" to "per-session groups of clients, fed by
// the Fan-out Bus instead of a single in-process EventBus".
package delivery

import (
	"time"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

// MessageType discriminates the wire messages the Delivery Plane sends and
// receives over a push channel (§4.5, §6).
type MessageType string

const (
	// Server -> client
	MessageConnected       MessageType = "connected"
	MessageStateUpdate     MessageType = "state_update"
	MessageStateSync       MessageType = "state_sync"
	MessageSessionDeleted  MessageType = "session_deleted"
	MessagePong            MessageType = "pong"
	MessageError           MessageType = "error"

	// Client -> server
	MessagePing        MessageType = "ping"
	MessageRequestSync MessageType = "request_sync"
)

// Message is the wire-neutral envelope for every push-channel message. Every
// timestamp is a server epoch millisecond, matching §6's wire format.
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	ServerTS  int64           `json:"server_ts"`
	Session   *engine.Session `json:"session,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func epochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func newConnectedMessage(sessionID string, now time.Time) Message {
	return Message{Type: MessageConnected, SessionID: sessionID, ServerTS: epochMillis(now)}
}

func newStateUpdateMessage(sessionID string, session *engine.Session, now time.Time) Message {
	return Message{Type: MessageStateUpdate, SessionID: sessionID, Session: session, ServerTS: epochMillis(now)}
}

func newStateSyncMessage(sessionID string, session *engine.Session, now time.Time) Message {
	return Message{Type: MessageStateSync, SessionID: sessionID, Session: session, ServerTS: epochMillis(now)}
}

func newSessionDeletedMessage(sessionID string, now time.Time) Message {
	return Message{Type: MessageSessionDeleted, SessionID: sessionID, ServerTS: epochMillis(now)}
}

func newPongMessage(now time.Time) Message {
	return Message{Type: MessagePong, ServerTS: epochMillis(now)}
}

func newErrorMessage(errMsg string, now time.Time) Message {
	return Message{Type: MessageError, Error: errMsg, ServerTS: epochMillis(now)}
}
