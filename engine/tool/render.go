package tool

import (
	"context"
	"fmt"

	"github.com/roundslab/rounds/pkg/logger"
	"github.com/roundslab/rounds/pkg/tplengine"
)

// categoryTemplates is the fixed category→text table. Rendered lines carry
// the human label and, where useful, candidate names or the offending
// argument; raw error text stays out by construction.
var categoryTemplates = map[ErrorCategory]string{
	ErrorTimeout:     `The {{ .label }} did not respond in time.`,
	ErrorRateLimited: `The {{ .label }} is handling too many requests right now.`,
	ErrorNotFound:    `No matching entry was found by the {{ .label }}.`,
	ErrorAmbiguousMatch: `The {{ .label }} found multiple possible matches` +
		`{{ if .candidates }}: {{ join ", " .candidates }}{{ end }}. ` +
		`More detail is needed to pick one.`,
	ErrorInvalidArgs: `The {{ .label }} request was missing or had invalid details` +
		`{{ if .field }} ({{ .field }}){{ end }}.`,
	ErrorServerError: `The {{ .label }} ran into an internal problem.`,
}

const emptyTemplate = `The {{ .label }} returned no results for this request.`

// Renderer turns outcomes into user-safe text through pre-parsed
// templates. A render failure degrades to a static line rather than
// letting raw detail through.
type Renderer struct {
	engine *tplengine.TemplateEngine
}

// NewRenderer parses the category templates once.
func NewRenderer() (*Renderer, error) {
	engine := tplengine.NewEngine()
	for category, text := range categoryTemplates {
		if err := engine.AddTemplate(errorTemplateName(category), text); err != nil {
			return nil, err
		}
	}
	if err := engine.AddTemplate("outcome_empty", emptyTemplate); err != nil {
		return nil, err
	}
	return &Renderer{engine: engine}, nil
}

// RenderError renders the line for a categorized failure.
func (r *Renderer) RenderError(ctx context.Context, label string, category ErrorCategory, candidates []string, field string) string {
	if !category.Valid() {
		category = ErrorServerError
	}
	text, err := r.engine.Render(errorTemplateName(category), map[string]any{
		"label":      label,
		"candidates": candidates,
		"field":      field,
	})
	if err != nil {
		logger.FromContext(ctx).Error("error template failed to render",
			"category", string(category), "error", err)
		return fmt.Sprintf("The %s could not complete this request.", label)
	}
	return text
}

// RenderEmpty renders the line for a successful call with no data.
func (r *Renderer) RenderEmpty(ctx context.Context, label string) string {
	text, err := r.engine.Render("outcome_empty", map[string]any{"label": label})
	if err != nil {
		logger.FromContext(ctx).Error("empty template failed to render", "error", err)
		return fmt.Sprintf("The %s returned no results.", label)
	}
	return text
}

func errorTemplateName(category ErrorCategory) string {
	return "error_" + string(category)
}
