package patientlookup

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
	t.Run("Should return the single matching record", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{"name": "Lindqvist"})
		require.NoError(t, err)

		var rec record
		require.NoError(t, json.Unmarshal(payload, &rec))
		assert.Equal(t, "Maren Lindqvist", rec.FullName)
		assert.Contains(t, rec.Allergies, "aspirin")
	})

	t.Run("Should report ambiguous_match with all candidates for a shared surname", func(t *testing.T) {
		_, err := handle(context.Background(), map[string]any{"name": "okafor"})
		require.Error(t, err)

		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorAmbiguousMatch, catErr.Category)
		assert.Len(t, catErr.Candidates, 3)
		assert.Contains(t, catErr.Candidates, "Adaeze Okafor (ward 2)")
	})

	t.Run("Should narrow ambiguous surnames by ward", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{"name": "okafor", "ward": "Ward 2"})
		require.NoError(t, err)
		var rec record
		require.NoError(t, json.Unmarshal(payload, &rec))
		assert.Equal(t, "Adaeze Okafor", rec.FullName)
	})

	t.Run("Should report not_found for unknown names", func(t *testing.T) {
		_, err := handle(context.Background(), map[string]any{"name": "nobody-here"})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorNotFound, catErr.Category)
	})

	t.Run("Should treat a blank name as invalid_args", func(t *testing.T) {
		_, err := handle(context.Background(), map[string]any{"name": "   "})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorInvalidArgs, catErr.Category)
		assert.Equal(t, "name", catErr.Field)
	})
}

func TestFormat(t *testing.T) {
	t.Run("Should render the label and record details, never the tool name", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{"name": "Herrera"})
		require.NoError(t, err)

		text, err := format(Label, payload)
		require.NoError(t, err)
		assert.Contains(t, text, "patient record lookup")
		assert.Contains(t, text, "Tomas Herrera")
		assert.Contains(t, text, "lisinopril 10mg daily")
		assert.NotContains(t, text, "patient_lookup")
	})

	t.Run("Should note absent allergies and medications", func(t *testing.T) {
		payload, err := handle(context.Background(), map[string]any{"name": "Ngozi"})
		require.NoError(t, err)

		text, err := format(Label, payload)
		require.NoError(t, err)
		assert.Contains(t, text, "latex")
		assert.Contains(t, text, "No active medications on record.")
	})

	t.Run("Should fail on a payload without a name", func(t *testing.T) {
		_, err := format(Label, json.RawMessage(`{"ward":"ward 9"}`))
		require.Error(t, err)
	})
}

func TestDefinition(t *testing.T) {
	t.Run("Should pass catalog validation with the critical field first", func(t *testing.T) {
		def := Definition()
		require.NoError(t, def.Check())
		assert.Equal(t, "name", def.Args.Fields[0].Name)
		assert.True(t, def.Args.Fields[0].Required)
		assert.True(t, def.ReadOnly)
		assert.True(t, def.UserSupplied("name"))
	})
}
