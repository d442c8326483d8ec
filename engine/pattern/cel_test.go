package pattern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator(t *testing.T) {
	t.Run("Should create an evaluator with defaults", func(t *testing.T) {
		evaluator, err := NewEvaluator()
		require.NoError(t, err)
		assert.NotNil(t, evaluator.env)
		assert.NotNil(t, evaluator.programs)
		assert.Equal(t, uint64(defaultCostLimit), evaluator.costLimit)
	})
	t.Run("Should honor a custom cost limit", func(t *testing.T) {
		evaluator, err := NewEvaluator(WithCostLimit(50))
		require.NoError(t, err)
		assert.Equal(t, uint64(50), evaluator.costLimit)
	})
}

func TestEvaluator_Evaluate(t *testing.T) {
	evaluator, err := NewEvaluator()
	require.NoError(t, err)
	ctx := context.Background()
	data := map[string]any{
		"query":            "does warfarin interact with clarithromycin for maren lindqvist",
		"entities":         Extract("Does warfarin interact with clarithromycin for Maren Lindqvist?").celContext(),
		"attachment_count": 0,
	}

	t.Run("Should evaluate entity counts", func(t *testing.T) {
		ok, err := evaluator.Evaluate(ctx, "size(entities.substances) >= 2", data)
		require.NoError(t, err)
		assert.True(t, ok)
	})
	t.Run("Should evaluate query text", func(t *testing.T) {
		ok, err := evaluator.Evaluate(ctx, `query.contains("interact")`, data)
		require.NoError(t, err)
		assert.True(t, ok)
	})
	t.Run("Should report false conditions", func(t *testing.T) {
		ok, err := evaluator.Evaluate(ctx, "attachment_count > 0", data)
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("Should reject non-boolean outcomes", func(t *testing.T) {
		_, err := evaluator.Evaluate(ctx, "query", data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boolean")
	})
	t.Run("Should surface compilation failures", func(t *testing.T) {
		_, err := evaluator.Evaluate(ctx, "attachment_count >", data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compilation")
	})
	t.Run("Should respect context cancellation", func(t *testing.T) {
		canceled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := evaluator.Evaluate(canceled, "attachment_count > 0", data)
		require.Error(t, err)
	})
	t.Run("Should cache compiled programs", func(t *testing.T) {
		const expr = "size(entities.patients) == 1"
		ok, err := evaluator.Evaluate(ctx, expr, data)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = evaluator.Evaluate(ctx, expr, data)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestEvaluator_Check(t *testing.T) {
	evaluator, err := NewEvaluator()
	require.NoError(t, err)

	t.Run("Should accept a valid predicate", func(t *testing.T) {
		assert.NoError(t, evaluator.Check("attachment_count > 0 && size(entities.patients) > 0"))
	})
	t.Run("Should reject an unknown variable", func(t *testing.T) {
		err := evaluator.Check("payload.status == 'ok'")
		require.Error(t, err)
	})
}
