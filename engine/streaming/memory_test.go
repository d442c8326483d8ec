package streaming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundslab/rounds/engine/core"
)

func TestMemoryPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("Should assign monotonic ids per turn", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		turnID := core.MustNewID()
		first, err := p.Publish(ctx, turnID, Event{Type: EventTypeTurnStart, Data: map[string]any{"query": "hi"}})
		require.NoError(t, err)
		second, err := p.Publish(ctx, turnID, Event{Type: EventTypeComplete})
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.ID)
		assert.Equal(t, int64(2), second.ID)
		assert.Equal(t, turnID, second.TurnID)
		assert.False(t, second.Timestamp.IsZero())
	})
	t.Run("Should keep turn sequences independent", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		a, err := p.Publish(ctx, core.MustNewID(), Event{Type: EventTypeTurnStart})
		require.NoError(t, err)
		b, err := p.Publish(ctx, core.MustNewID(), Event{Type: EventTypeTurnStart})
		require.NoError(t, err)
		assert.Equal(t, int64(1), a.ID)
		assert.Equal(t, int64(1), b.ID)
	})
	t.Run("Should reject a missing turn id", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		_, err := p.Publish(ctx, "", Event{Type: EventTypeWarning})
		require.Error(t, err)
	})
	t.Run("Should reject a missing event type", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		_, err := p.Publish(ctx, core.MustNewID(), Event{})
		require.Error(t, err)
	})
	t.Run("Should cap the replay log", func(t *testing.T) {
		p := NewMemoryPublisher(&MemoryOptions{MaxEntries: 2})
		turnID := core.MustNewID()
		for range 5 {
			_, err := p.Publish(ctx, turnID, Event{Type: EventTypeNodeStart})
			require.NoError(t, err)
		}
		envelopes, err := p.Replay(ctx, turnID, 0, 0)
		require.NoError(t, err)
		require.Len(t, envelopes, 2)
		assert.Equal(t, int64(4), envelopes[0].ID)
		assert.Equal(t, int64(5), envelopes[1].ID)
	})
}

func TestMemoryPublisher_Replay(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return events after the given id", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		turnID := core.MustNewID()
		for range 4 {
			_, err := p.Publish(ctx, turnID, Event{Type: EventTypeNodeStart})
			require.NoError(t, err)
		}
		envelopes, err := p.Replay(ctx, turnID, 2, 0)
		require.NoError(t, err)
		require.Len(t, envelopes, 2)
		assert.Equal(t, int64(3), envelopes[0].ID)
	})
	t.Run("Should honor the limit", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		turnID := core.MustNewID()
		for range 4 {
			_, err := p.Publish(ctx, turnID, Event{Type: EventTypeNodeStart})
			require.NoError(t, err)
		}
		envelopes, err := p.Replay(ctx, turnID, 0, 3)
		require.NoError(t, err)
		assert.Len(t, envelopes, 3)
	})
	t.Run("Should return nothing for an unknown turn", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		envelopes, err := p.Replay(ctx, core.MustNewID(), 0, 0)
		require.NoError(t, err)
		assert.Empty(t, envelopes)
	})
}

func TestMemoryPublisher_Subscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("Should deliver live events in order", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		turnID := core.MustNewID()
		ch, cancel, err := p.Subscribe(ctx, turnID)
		require.NoError(t, err)
		defer cancel()

		_, err = p.Publish(ctx, turnID, Event{Type: EventTypeTurnStart})
		require.NoError(t, err)
		_, err = p.Publish(ctx, turnID, Event{Type: EventTypeComplete})
		require.NoError(t, err)

		first := <-ch
		second := <-ch
		assert.Equal(t, EventTypeTurnStart, first.Type)
		assert.Equal(t, EventTypeComplete, second.Type)
	})
	t.Run("Should stop delivering after cancel", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		turnID := core.MustNewID()
		ch, cancel, err := p.Subscribe(ctx, turnID)
		require.NoError(t, err)
		cancel()
		cancel()

		_, err = p.Publish(ctx, turnID, Event{Type: EventTypeWarning})
		require.NoError(t, err)
		_, open := <-ch
		assert.False(t, open)
	})
	t.Run("Should drop events for a full subscriber instead of blocking", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		turnID := core.MustNewID()
		ch, cancel, err := p.Subscribe(ctx, turnID)
		require.NoError(t, err)
		defer cancel()

		for range subscriberBufferSize + 10 {
			_, err := p.Publish(ctx, turnID, Event{Type: EventTypeNodeStart})
			require.NoError(t, err)
		}
		assert.Len(t, ch, subscriberBufferSize)
	})
	t.Run("Should close subscribers when the turn is dropped", func(t *testing.T) {
		p := NewMemoryPublisher(nil)
		turnID := core.MustNewID()
		ch, cancel, err := p.Subscribe(ctx, turnID)
		require.NoError(t, err)
		defer cancel()

		p.Drop(turnID)
		_, open := <-ch
		assert.False(t, open)

		envelopes, err := p.Replay(ctx, turnID, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, envelopes)
	})
}
