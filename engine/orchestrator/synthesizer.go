package orchestrator

import (
	"context"
	"strings"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/llm"
	"github.com/roundslab/rounds/pkg/logger"
)

// synthesize produces the final response, the only output the user ever
// sees. A pending clarification short-circuits without a generation call
// so the candidate list reaches the user verbatim. The free-form call
// runs warmer than the classification calls and under a moderate length
// ceiling; generous ceilings measurably invite padding. Whatever happens,
// the turn ends with a non-empty response.
func (o *Orchestrator) synthesize(ctx context.Context, state *TurnState, outcome string) error {
	if question := state.Clarification(); question != "" {
		return state.Finish(question, OutcomeClarification)
	}

	system, messages := o.prompts.synthesisPrompt(state)
	text, err := o.client.GenerateText(ctx, &llm.TextRequest{
		System:   system,
		Messages: messages,
		Params: core.PromptParams{
			MaxTokens:   o.settings.synthesisMaxTokens,
			Temperature: core.Ptr(o.settings.synthesisTemperature),
		},
	})
	o.metrics.RecordGeneration(ctx, "synthesis", err != nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.FromContext(ctx).Warn("synthesis call failed, using fallback response",
			"error", core.RedactError(err))
		return state.Finish(fallbackText(state), OutcomeFallback)
	}
	if strings.TrimSpace(text) == "" {
		// An empty free-form completion is a known backend pathology; it
		// must never become a silent empty turn.
		logger.FromContext(ctx).Warn("synthesis returned empty text, using fallback response")
		return state.Finish(fallbackText(state), OutcomeFallback)
	}
	return state.Finish(text, outcome)
}

// fallbackText builds the static response used when synthesis itself
// fails, carrying any gathered limitation notes so the user still learns
// what was attempted.
func fallbackText(state *TurnState) string {
	notes := state.Notes()
	if len(notes) == 0 {
		return fallbackResponse
	}
	var b strings.Builder
	b.WriteString(fallbackResponse)
	b.WriteString("\n")
	for _, note := range notes {
		b.WriteString("\n- ")
		b.WriteString(note)
	}
	return b.String()
}
