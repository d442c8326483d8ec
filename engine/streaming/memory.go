package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/pkg/logger"
)

const (
	defaultMaxEntries    = 500
	subscriberBufferSize = 64
)

// MemoryPublisher keeps per-turn event logs in process memory and fans
// events out to live subscribers. It backs the interactive CLI; nothing
// about it survives a restart.
type MemoryPublisher struct {
	mu         sync.Mutex
	maxEntries int
	streams    map[core.ID]*turnStream
}

type turnStream struct {
	nextID      int64
	log         []Envelope
	subscribers map[int64]chan Envelope
	nextSub     int64
}

// MemoryOptions controls memory publisher behavior.
type MemoryOptions struct {
	// MaxEntries caps the replay log kept per turn.
	MaxEntries int
}

// NewMemoryPublisher constructs an in-process event publisher.
func NewMemoryPublisher(opts *MemoryOptions) *MemoryPublisher {
	maxEntries := defaultMaxEntries
	if opts != nil && opts.MaxEntries > 0 {
		maxEntries = opts.MaxEntries
	}
	return &MemoryPublisher{
		maxEntries: maxEntries,
		streams:    make(map[core.ID]*turnStream),
	}
}

// Publish appends the event to the turn's log and broadcasts it. Slow
// subscribers lose events rather than block the turn.
func (p *MemoryPublisher) Publish(ctx context.Context, turnID core.ID, event Event) (Envelope, error) {
	if turnID.IsZero() {
		return Envelope{}, errors.New("streaming: turn id is required")
	}
	p.mu.Lock()
	stream := p.streamLocked(turnID)
	stream.nextID++
	envelope, err := NewEnvelope(stream.nextID, turnID, event, time.Now())
	if err != nil {
		stream.nextID--
		p.mu.Unlock()
		return Envelope{}, err
	}
	stream.log = append(stream.log, envelope)
	if len(stream.log) > p.maxEntries {
		stream.log = stream.log[len(stream.log)-p.maxEntries:]
	}
	dropped := 0
	for _, ch := range stream.subscribers {
		select {
		case ch <- envelope:
		default:
			dropped++
		}
	}
	p.mu.Unlock()
	if dropped > 0 {
		logger.FromContext(ctx).Warn("dropped stream event for slow subscribers",
			"turn_id", turnID, "event", event.Type, "subscribers", dropped)
	}
	return envelope, nil
}

// Replay returns up to limit envelopes recorded after afterID.
func (p *MemoryPublisher) Replay(_ context.Context, turnID core.ID, afterID int64, limit int) ([]Envelope, error) {
	if turnID.IsZero() {
		return nil, errors.New("streaming: turn id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stream, ok := p.streams[turnID]
	if !ok {
		return nil, nil
	}
	out := make([]Envelope, 0, len(stream.log))
	for _, envelope := range stream.log {
		if envelope.ID <= afterID {
			continue
		}
		out = append(out, envelope)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Subscribe registers a live feed for a turn. The returned cancel func is
// idempotent; canceling the context also detaches the subscriber.
func (p *MemoryPublisher) Subscribe(ctx context.Context, turnID core.ID) (<-chan Envelope, func(), error) {
	if turnID.IsZero() {
		return nil, nil, errors.New("streaming: turn id is required")
	}
	p.mu.Lock()
	stream := p.streamLocked(turnID)
	stream.nextSub++
	subID := stream.nextSub
	ch := make(chan Envelope, subscriberBufferSize)
	stream.subscribers[subID] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			if _, ok := stream.subscribers[subID]; ok {
				delete(stream.subscribers, subID)
				close(ch)
			}
			p.mu.Unlock()
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			cancel()
		}()
	}
	return ch, cancel, nil
}

// Drop forgets a turn's log and closes any remaining subscribers. Callers
// invoke it once a turn's events are no longer needed.
func (p *MemoryPublisher) Drop(turnID core.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stream, ok := p.streams[turnID]
	if !ok {
		return
	}
	for subID, ch := range stream.subscribers {
		delete(stream.subscribers, subID)
		close(ch)
	}
	delete(p.streams, turnID)
}

func (p *MemoryPublisher) streamLocked(turnID core.ID) *turnStream {
	stream, ok := p.streams[turnID]
	if !ok {
		stream = &turnStream{subscribers: make(map[int64]chan Envelope)}
		p.streams[turnID] = stream
	}
	return stream
}
