package tplengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderString(t *testing.T) {
	t.Run("Should pass through plain strings", func(t *testing.T) {
		e := NewEngine()

		out, err := e.RenderString("no markers here", nil)

		require.NoError(t, err)
		assert.Equal(t, "no markers here", out)
	})

	t.Run("Should render context values and sprig functions", func(t *testing.T) {
		e := NewEngine()

		out, err := e.RenderString(
			"The {{ .ToolLabel | lower }} took {{ .Count }} tries",
			map[string]any{"ToolLabel": "Literature Search", "Count": 2},
		)

		require.NoError(t, err)
		assert.Equal(t, "The literature search took 2 tries", out)
	})

	t.Run("Should fail on missing keys instead of emitting no value", func(t *testing.T) {
		e := NewEngine()

		_, err := e.RenderString("hello {{ .Missing }}", map[string]any{})

		require.Error(t, err)
	})
}

func TestNamedTemplates(t *testing.T) {
	t.Run("Should render registered templates by name", func(t *testing.T) {
		e := NewEngine()
		require.NoError(t, e.AddTemplate("timeout", "{{ .ToolLabel }} did not respond in time."))

		out, err := e.Render("timeout", map[string]any{"ToolLabel": "patient record lookup"})

		require.NoError(t, err)
		assert.Equal(t, "patient record lookup did not respond in time.", out)
	})

	t.Run("Should reject renders of unknown templates", func(t *testing.T) {
		e := NewEngine()

		_, err := e.Render("nope", nil)

		require.Error(t, err)
	})

	t.Run("Should merge global values into every context", func(t *testing.T) {
		e := NewEngine()
		e.AddGlobalValue("Product", "rounds")
		require.NoError(t, e.AddTemplate("banner", "{{ .Product }}: {{ .Msg }}"))

		out, err := e.Render("banner", map[string]any{"Msg": "ready"})

		require.NoError(t, err)
		assert.Equal(t, "rounds: ready", out)
	})
}

func TestHasTemplate(t *testing.T) {
	t.Run("Should detect template markers", func(t *testing.T) {
		assert.True(t, HasTemplate("{{ .X }}"))
		assert.False(t, HasTemplate("plain"))
	})
}
