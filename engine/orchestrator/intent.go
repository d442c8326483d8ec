package orchestrator

import (
	"context"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/llm"
	"github.com/roundslab/rounds/pkg/logger"
)

// classifyIntent runs the single constrained intake call at the backend's
// most deterministic setting. The task summary it produces follows the
// turn all the way into synthesis, substituting for a dedicated reasoning
// step.
func (o *Orchestrator) classifyIntent(ctx context.Context, state *TurnState) error {
	system, messages := o.prompts.intentPrompt(state)
	var decision IntentDecision
	err := o.client.GenerateObject(ctx, &llm.ObjectRequest{
		System:   system,
		Messages: messages,
		Params:   o.settings.classifyParams(),
		Contract: ContractIntent,
	}, &decision)
	o.metrics.RecordGeneration(ctx, "intent", err != nil)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("intent classified",
		"intent", decision.Intent, "suggested_tool", decision.SuggestedTool)
	return state.SetIntent(core.Intent(decision.Intent), decision.TaskSummary, decision.SuggestedTool)
}
