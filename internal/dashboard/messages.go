// Package dashboard is the daemon's control surface.
//
// Other processes (CLI commands, a status bar widget, a browser page) talk to
// a running daemon through it:
//
//	POST /api/messages   {"type":"TRIGGER_SYNC"} and friends, one reply each
//	GET  /ws             WebSocket; pushes SYNC_STATUS_CHANGED on every status
//	                     mutation and accepts the same control messages
//	GET  /health         liveness and client count
//	GET  /metrics        Prometheus metrics
//
// Delivery of SYNC_STATUS_CHANGED is best-effort. A client that was not
// connected, or could not keep up, misses updates and should send
// GET_SYNC_STATUS when it (re)connects.
package dashboard

import (
	"encoding/json"
	"time"
)

// MessageType names a control or notification message.
type MessageType string

const (
	// Requests.
	MessageTriggerSync   MessageType = "TRIGGER_SYNC"
	MessageGetSyncStatus MessageType = "GET_SYNC_STATUS"
	MessageEnableSync    MessageType = "ENABLE_SYNC"
	MessageDisableSync   MessageType = "DISABLE_SYNC"

	// Replies.
	MessageSyncTriggered MessageType = "SYNC_TRIGGERED"
	MessageSyncStatus    MessageType = "SYNC_STATUS"
	MessageSyncSettings  MessageType = "SYNC_SETTINGS"
	MessageError         MessageType = "ERROR"

	// Broadcast on every status mutation.
	MessageSyncStatusChanged MessageType = "SYNC_STATUS_CHANGED"
)

// Message is the envelope for every request, reply and broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of an ERROR reply.
type ErrorData struct {
	Error string `json:"error"`
}

func newMessage(t MessageType, data any) Message {
	msg := Message{Type: t, Timestamp: time.Now().UTC()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Data = raw
		}
	}
	return msg
}
