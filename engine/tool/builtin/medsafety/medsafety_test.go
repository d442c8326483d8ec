package medsafety

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundslab/rounds/engine/tool"
)

func TestHandle(t *testing.T) {
	t.Run("Should return the full monograph without a pair argument", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{"substance": "Warfarin"})
		require.NoError(t, err)

		var entry monograph
		require.NoError(t, json.Unmarshal(payload, &entry))
		assert.Equal(t, "warfarin", entry.Substance)
		assert.NotEmpty(t, entry.Interactions)
	})

	t.Run("Should check a specific interaction pair", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{
			"substance":        "warfarin",
			"interacting_with": "clarithromycin",
		})
		require.NoError(t, err)

		var check pairCheck
		require.NoError(t, json.Unmarshal(payload, &check))
		assert.Equal(t, "major", check.Severity)
		assert.Contains(t, check.Note, "INR")
	})

	t.Run("Should report none documented for an uninteracting pair", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{
			"substance":        "bisoprolol",
			"interacting_with": "metformin",
		})
		require.NoError(t, err)

		var check pairCheck
		require.NoError(t, json.Unmarshal(payload, &check))
		assert.Equal(t, "none documented", check.Severity)
	})

	t.Run("Should report not_found for an unknown substance", func(t *testing.T) {
		_, err := handle(context.Background(), map[string]any{"substance": "unobtainium"})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorNotFound, catErr.Category)
	})

	t.Run("Should report not_found for an unknown interacting substance", func(t *testing.T) {
		_, err := handle(context.Background(), map[string]any{
			"substance":        "warfarin",
			"interacting_with": "unobtainium",
		})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorNotFound, catErr.Category)
		assert.Equal(t, "interacting_with", catErr.Field)
	})
}

func TestFormat(t *testing.T) {
	t.Run("Should render a pair check with the label", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{
			"substance":        "simvastatin",
			"interacting_with": "clarithromycin",
		})
		require.NoError(t, err)

		text, err := format(Label, payload)
		require.NoError(t, err)
		assert.Contains(t, text, "medication safety data")
		assert.Contains(t, text, "major interaction")
		assert.NotContains(t, text, "medication_safety")
	})

	t.Run("Should render a monograph summary", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{"substance": "metformin"})
		require.NoError(t, err)

		text, err := format(Label, payload)
		require.NoError(t, err)
		assert.Contains(t, text, "biguanide")
		assert.Contains(t, text, "iodinated contrast (major)")
		assert.Contains(t, text, "Monitoring:")
	})
}

func TestDefinition(t *testing.T) {
	t.Run("Should pass catalog validation with substance first", func(t *testing.T) {
		def := Definition()
		require.NoError(t, def.Check())
		assert.Equal(t, "substance", def.Args.Fields[0].Name)
		assert.Equal(t, "safety", def.Category)
	})
}
