// Package transcript records what happened during a turn: the audit-ordered
// entries shown to operators, per-node timings, and the final outcome.
// Display text always carries human-facing tool labels; internal tool names
// and raw errors belong in the structured payloads, never in Display.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/roundslab/rounds/engine/core"
)

// ErrNotFound is returned when a turn id has no stored transcript.
var ErrNotFound = errors.New("transcript: turn not found")

// ErrDuplicateTurn is returned when a turn id was already saved; transcripts
// are write-once.
var ErrDuplicateTurn = errors.New("transcript: turn already saved")

// EntryKind classifies a transcript entry.
type EntryKind string

const (
	EntryKindUserMessage   EntryKind = "user_message"
	EntryKindIntent        EntryKind = "intent"
	EntryKindToolCall      EntryKind = "tool_call"
	EntryKindNote          EntryKind = "note"
	EntryKindClarification EntryKind = "clarification"
	EntryKindResponse      EntryKind = "response"
)

// Entry is one audit-ordered line of a turn.
type Entry struct {
	Seq       int             `json:"seq"`
	Kind      EntryKind       `json:"kind"`
	Display   string          `json:"display"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NodeTiming records how long one node execution took.
type NodeTiming struct {
	Node      string        `json:"node"`
	Iteration int           `json:"iteration"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Transcript is the full record of one turn.
type Transcript struct {
	TurnID        core.ID      `json:"turn_id"`
	SessionID     string       `json:"session_id"`
	Query         string       `json:"query"`
	Outcome       string       `json:"outcome"`
	FinalResponse string       `json:"final_response"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   time.Time    `json:"completed_at"`
	Entries       []Entry      `json:"entries"`
	Timings       []NodeTiming `json:"timings,omitempty"`
}

// New starts a transcript for a turn.
func New(turnID core.ID, sessionID, query string) *Transcript {
	return &Transcript{
		TurnID:    turnID,
		SessionID: sessionID,
		Query:     query,
		StartedAt: time.Now().UTC(),
	}
}

// AddEntry appends an entry in audit order and returns it.
func (t *Transcript) AddEntry(kind EntryKind, display string, payload json.RawMessage) *Entry {
	t.Entries = append(t.Entries, Entry{
		Seq:       len(t.Entries) + 1,
		Kind:      kind,
		Display:   display,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	return &t.Entries[len(t.Entries)-1]
}

// AddTiming records one node execution.
func (t *Transcript) AddTiming(node string, iteration int, startedAt time.Time, duration time.Duration) {
	t.Timings = append(t.Timings, NodeTiming{
		Node:      node,
		Iteration: iteration,
		StartedAt: startedAt.UTC(),
		Duration:  duration,
	})
}

// Complete stamps the outcome and final response.
func (t *Transcript) Complete(outcome, finalResponse string) {
	t.Outcome = outcome
	t.FinalResponse = finalResponse
	t.CompletedAt = time.Now().UTC()
}

// Store persists completed turns. Implementations must treat saved
// transcripts as immutable.
type Store interface {
	// SaveTurn persists a completed transcript; saving the same turn id
	// twice fails with ErrDuplicateTurn.
	SaveTurn(ctx context.Context, t *Transcript) error
	// GetTurn loads one transcript or ErrNotFound.
	GetTurn(ctx context.Context, turnID core.ID) (*Transcript, error)
	// ListTurns returns a session's transcripts, most recently completed
	// first. A non-positive limit applies a sensible default.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]*Transcript, error)
	// Close releases store resources.
	Close(ctx context.Context) error
}

const defaultListLimit = 20
