package pattern

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, cfg Config) *Table {
	t.Helper()
	table, err := NewTable(context.Background(), cfg)
	require.NoError(t, err)
	return table
}

func TestNewTable(t *testing.T) {
	t.Run("Should load the embedded defaults in declared order", func(t *testing.T) {
		table := newTestTable(t, Config{})
		patterns := table.Snapshot().Patterns()
		require.NotEmpty(t, patterns)
		assert.Equal(t, "comprehensive_review", patterns[0].Name)
		names := make([]string, 0, len(patterns))
		for _, p := range patterns {
			names = append(names, p.Name)
		}
		assert.Contains(t, names, "interaction_check")
		assert.Contains(t, names, "evidence_lookup")
	})
	t.Run("Should reject globs that escape the root", func(t *testing.T) {
		_, err := NewTable(context.Background(), Config{Root: t.TempDir(), Paths: []string{"../*.yaml"}})
		require.Error(t, err)
	})
}

func TestSnapshot_Analyze(t *testing.T) {
	table := newTestTable(t, Config{})
	snapshot := table.Snapshot()
	ctx := context.Background()

	t.Run("Should route a named patient medication query to records and safety", func(t *testing.T) {
		analysis := snapshot.Analyze(ctx, "Can you review the medications Maren Lindqvist is taking?", 0)
		require.True(t, analysis.Matched())
		assert.Equal(t, "patient_medication_review", analysis.PatternName())
		assert.Equal(t, []string{"records", "safety"}, analysis.RequiredCategories())
		assert.Equal(t, []string{"Maren Lindqvist"}, analysis.Entities[KindPatients])
	})
	t.Run("Should demand all categories for a comprehensive review", func(t *testing.T) {
		analysis := snapshot.Analyze(ctx, "Prepare a comprehensive review for Tomas Herrera", 0)
		require.True(t, analysis.Matched())
		assert.Equal(t, "comprehensive_review", analysis.PatternName())
		assert.Equal(t, []string{"records", "safety", "literature"}, analysis.RequiredCategories())
	})
	t.Run("Should match interaction questions without a patient", func(t *testing.T) {
		analysis := snapshot.Analyze(ctx, "Does warfarin interact with clarithromycin?", 0)
		require.True(t, analysis.Matched())
		assert.Equal(t, "interaction_check", analysis.PatternName())
		assert.Equal(t, []string{"safety"}, analysis.RequiredCategories())
	})
	t.Run("Should match evidence questions without entities", func(t *testing.T) {
		analysis := snapshot.Analyze(ctx, "Is there published evidence for early mobilisation?", 0)
		require.True(t, analysis.Matched())
		assert.Equal(t, "evidence_lookup", analysis.PatternName())
	})
	t.Run("Should skip a row whose predicate is false", func(t *testing.T) {
		analysis := snapshot.Analyze(ctx, "Please do a full review of this protocol", 0)
		assert.False(t, analysis.Matched())
		assert.Nil(t, analysis.RequiredCategories())
	})
	t.Run("Should count attachments toward predicates", func(t *testing.T) {
		analysis := snapshot.Analyze(ctx, "Please do a full review of this protocol", 1)
		require.True(t, analysis.Matched())
		assert.Equal(t, "comprehensive_review", analysis.PatternName())
	})
	t.Run("Should report no match for general knowledge questions", func(t *testing.T) {
		analysis := snapshot.Analyze(ctx, "What is hypertension?", 0)
		assert.False(t, analysis.Matched())
		assert.Empty(t, analysis.PatternName())
	})
}

func TestTable_Overrides(t *testing.T) {
	t.Run("Should replace a default row in place", func(t *testing.T) {
		dir := t.TempDir()
		override := `patterns:
  - name: interaction_check
    keywords: [interact]
    entities: [substances]
    require: [safety, literature]
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "patterns.yaml"), []byte(override), 0o644))
		table := newTestTable(t, Config{Root: dir, Paths: []string{"*.yaml"}})
		analysis := table.Snapshot().Analyze(context.Background(), "Does warfarin interact with apixaban?", 0)
		require.True(t, analysis.Matched())
		assert.Equal(t, []string{"safety", "literature"}, analysis.RequiredCategories())
	})
	t.Run("Should append new rows after the defaults", func(t *testing.T) {
		dir := t.TempDir()
		override := `patterns:
  - name: respiratory_protocol
    keywords: [ventilator, weaning]
    require: [literature]
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(override), 0o644))
		table := newTestTable(t, Config{Root: dir, Paths: []string{"*.yaml"}})
		patterns := table.Snapshot().Patterns()
		assert.Equal(t, "respiratory_protocol", patterns[len(patterns)-1].Name)
		analysis := table.Snapshot().Analyze(context.Background(), "ventilator weaning criteria", 0)
		assert.Equal(t, "respiratory_protocol", analysis.PatternName())
	})
	t.Run("Should reject a row without required categories", func(t *testing.T) {
		dir := t.TempDir()
		override := `patterns:
  - name: broken_row
    keywords: [x]
    require: []
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(override), 0o644))
		_, err := NewTable(context.Background(), Config{Root: dir, Paths: []string{"*.yaml"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "INVALID_PATTERN")
	})
	t.Run("Should reject a row with a broken predicate", func(t *testing.T) {
		dir := t.TempDir()
		override := `patterns:
  - name: broken_predicate
    when: "attachment_count >"
    require: [records]
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(override), 0o644))
		_, err := NewTable(context.Background(), Config{Root: dir, Paths: []string{"*.yaml"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PATTERN_PREDICATE_INVALID")
	})
	t.Run("Should reject a row matching everything", func(t *testing.T) {
		dir := t.TempDir()
		override := `patterns:
  - name: catch_all
    require: [records]
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(override), 0o644))
		_, err := NewTable(context.Background(), Config{Root: dir, Paths: []string{"*.yaml"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PATTERN_HAS_NO_SIGNALS")
	})
}

func TestTable_Watch(t *testing.T) {
	t.Run("Should pick up edits to an override file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "patterns.yaml")
		first := `patterns:
  - name: respiratory_protocol
    keywords: [ventilator]
    require: [literature]
`
		require.NoError(t, os.WriteFile(path, []byte(first), 0o644))
		table := newTestTable(t, Config{Root: dir, Paths: []string{"*.yaml"}})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, table.Watch(ctx))

		second := first + `  - name: sepsis_bundle
    keywords: [sepsis bundle]
    require: [literature]
`
		require.NoError(t, os.WriteFile(path, []byte(second), 0o644))
		assert.Eventually(t, func() bool {
			patterns := table.Snapshot().Patterns()
			return patterns[len(patterns)-1].Name == "sepsis_bundle"
		}, 3*time.Second, 50*time.Millisecond)
	})
	t.Run("Should keep the previous table when a reload fails", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "patterns.yaml")
		first := `patterns:
  - name: respiratory_protocol
    keywords: [ventilator]
    require: [literature]
`
		require.NoError(t, os.WriteFile(path, []byte(first), 0o644))
		table := newTestTable(t, Config{Root: dir, Paths: []string{"*.yaml"}})
		before := len(table.Snapshot().Patterns())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, table.Watch(ctx))

		require.NoError(t, os.WriteFile(path, []byte("patterns: ["), 0o644))
		time.Sleep(1500 * time.Millisecond)
		assert.Len(t, table.Snapshot().Patterns(), before)
		analysis := table.Snapshot().Analyze(context.Background(), "ventilator weaning", 0)
		assert.Equal(t, "respiratory_protocol", analysis.PatternName())
	})
}
