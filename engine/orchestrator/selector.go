package orchestrator

import (
	"context"

	"github.com/roundslab/rounds/engine/llm"
	"github.com/roundslab/rounds/pkg/logger"
)

// selectTool is the two-stage Tool Selector. Stage one is a single-field
// enum choice; nothing nullable trails the required field, so the null
// cascade has no surface. Stage two extracts the chosen tool's arguments
// against its registered contract, critical field first, with entity
// hints quoted into the prompt. Selecting the "none" sentinel records a
// hint for the router and queues no execution.
func (o *Orchestrator) selectTool(ctx context.Context, state *TurnState) error {
	log := logger.FromContext(ctx)
	system, messages := o.prompts.selectionPrompt(state, o.catalog.Definitions())
	var choice ToolChoice
	err := o.client.GenerateObject(ctx, &llm.ObjectRequest{
		System:   system,
		Messages: messages,
		Params:   o.settings.classifyParams(),
		Contract: ContractSelection,
	}, &choice)
	o.metrics.RecordGeneration(ctx, "selection", err != nil)
	if err != nil {
		return err
	}
	if choice.ToolName == ToolNone {
		log.Debug("selector chose the none sentinel", "streak", state.noneStreak+1)
		return state.RecordNoneSelection()
	}
	def, err := o.catalog.Get(choice.ToolName)
	if err != nil {
		// The enum makes this unreachable for a contract-conformant
		// backend; treat it as a contract breach so the turn degrades the
		// same way.
		return &llm.ContractError{Contract: ContractSelection, Content: choice.ToolName, Err: err}
	}

	argsSystem, argsMessages := o.prompts.argumentsPrompt(state, def)
	args := make(map[string]any)
	err = o.client.GenerateObject(ctx, &llm.ObjectRequest{
		System:   argsSystem,
		Messages: argsMessages,
		Params:   o.settings.classifyParams(),
		Contract: def.Args.Name,
	}, &args)
	o.metrics.RecordGeneration(ctx, "arguments", err != nil)
	if err != nil {
		return err
	}
	log.Debug("tool selected", "tool", def.Name, "arg_count", len(args))
	return state.RecordSelection(def.Name, args)
}
