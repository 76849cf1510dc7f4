// internal/model/event.go
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types pushed over the notification socket.
const (
	EventConnected        = "connected"
	EventNewMessage       = "new_message"
	EventMessageStatus    = "message_status"
	EventNewConversation  = "new_conversation"
	EventTyping           = "typing"
	EventPong             = "pong"
	EventTestNotification = "test_notification"
)

// Event is the server->client envelope. On the wire the payload fields are
// flattened into the envelope: {"type": ..., "id": ..., "timestamp": ..., <data>}.
type Event struct {
	Type      string
	ID        string
	Timestamp time.Time
	Data      map[string]any
}

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+3)
	for k, v := range e.Data {
		out[k] = v
	}
	// Envelope fields win over payload keys of the same name.
	out["type"] = e.Type
	out["id"] = e.ID
	out["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if v, ok := raw["type"].(string); ok {
		e.Type = v
	}
	if v, ok := raw["id"].(string); ok {
		e.ID = v
	}
	if v, ok := raw["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.Timestamp = ts
		}
	}
	delete(raw, "type")
	delete(raw, "id")
	delete(raw, "timestamp")
	e.Data = raw
	return nil
}
