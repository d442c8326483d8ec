// Package streaming fans turn lifecycle events out to interactive clients.
// Envelopes carry per-turn monotonic ids so a consumer can replay what it
// missed and then follow the live feed without gaps.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roundslab/rounds/engine/core"
)

// EventType enumerates the turn lifecycle events surfaced to clients.
type EventType string

const (
	EventTypeTurnStart     EventType = "turn_start"
	EventTypeNodeStart     EventType = "node_start"
	EventTypeNodeEnd       EventType = "node_end"
	EventTypeToolCallStart EventType = "tool_call_start"
	EventTypeToolCallEnd   EventType = "tool_call_end"
	EventTypeWarning       EventType = "warning"
	EventTypeComplete      EventType = "complete"
	EventTypeError         EventType = "error"
)

// Event captures a logical event before transport encoding.
type Event struct {
	Type EventType
	Data any
}

// Envelope is the transport representation stored and broadcast to
// subscribers.
type Envelope struct {
	ID        int64           `json:"id"`
	TurnID    core.ID         `json:"turn_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// Publisher exposes methods to publish and replay turn events.
type Publisher interface {
	Publish(ctx context.Context, turnID core.ID, event Event) (Envelope, error)
	Replay(ctx context.Context, turnID core.ID, afterID int64, limit int) ([]Envelope, error)
}

// NewEnvelope constructs an envelope from the provided event data.
func NewEnvelope(id int64, turnID core.ID, event Event, ts time.Time) (Envelope, error) {
	if turnID.IsZero() {
		return Envelope{}, fmt.Errorf("streaming: turn id is required")
	}
	if event.Type == "" {
		return Envelope{}, fmt.Errorf("streaming: event type is required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("streaming: marshal payload: %w", err)
	}
	return Envelope{
		ID:        id,
		TurnID:    turnID,
		Type:      event.Type,
		Timestamp: ts.UTC(),
		Data:      payload,
	}, nil
}
