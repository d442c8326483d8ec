package orchestrator

import (
	"context"
	"fmt"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/llm"
	"github.com/roundslab/rounds/engine/tool"
	"github.com/roundslab/rounds/engine/transcript"
	"github.com/roundslab/rounds/pkg/logger"
)

// recoverFailure is the hybrid Error Classifier. Two deterministic tiers
// run first: defer-to-human and abandon-step are decisions the generation
// backend is empirically near-unable to emit, so they are never asked of
// it. Only a transient failure inside the retry budget reaches the one
// narrow model-assisted choice (retry identical vs adjust arguments).
func (o *Orchestrator) recoverFailure(ctx context.Context, state *TurnState, tr *transcript.Transcript) (Node, error) {
	log := logger.FromContext(ctx)
	pending := state.Pending()
	if pending == nil || pending.Result == nil {
		return NodeSynthesize, core.NewError(nil, "NO_PENDING_FAILURE", nil)
	}
	result := pending.Result
	def, defErr := o.catalog.Get(pending.Tool)

	// Tier 1, defer to human. An ambiguous entity match, or a required
	// argument only the user can supply, turns into a clarification the
	// Synthesizer delivers verbatim.
	if result.ErrorCategory == tool.ErrorAmbiguousMatch {
		question := clarificationForCandidates(result.ToolLabel, result.Candidates)
		log.Info("deferring to user on ambiguous match",
			"tool", pending.Tool, "candidates", len(result.Candidates))
		return o.deferToHuman(state, tr, question), nil
	}
	if result.ErrorCategory == tool.ErrorInvalidArgs && defErr == nil {
		if missing := def.MissingRequiredArgs(pending.Arguments); len(missing) > 0 && def.UserSupplied(missing[0]) {
			question := clarificationForMissingArg(result.ToolLabel, missing[0])
			log.Info("deferring to user on missing argument",
				"tool", pending.Tool, "field", missing[0])
			return o.deferToHuman(state, tr, question), nil
		}
	}

	// Tier 2, abandon the step: non-retryable category or retry budget
	// exhausted. The router then decides whether other steps remain.
	if defErr != nil || !result.ErrorCategory.Retryable() ||
		state.RetryCurrentTool() >= o.settings.maxRetriesPerTool ||
		state.RetryTotal() >= o.settings.maxTotalRetries {
		note := abandonNote(result)
		log.Info("abandoning step",
			"tool", pending.Tool, "category", string(result.ErrorCategory),
			"retries_tool", state.RetryCurrentTool(), "retries_total", state.RetryTotal())
		state.AddNote(note)
		tr.AddEntry(transcript.EntryKindNote, note, nil)
		state.ClearPending()
		state.ClearQuality()
		return Route(state.RouteView(o.settings.maxSteps)), nil
	}

	// Tier 3, the one model-assisted recovery choice.
	system, messages := o.prompts.recoveryPrompt(state, pending, def)
	var decision RecoveryDecision
	err := o.client.GenerateObject(ctx, &llm.ObjectRequest{
		System:   system,
		Messages: messages,
		Params:   o.settings.classifyParams(),
		Contract: ContractRecovery,
	}, &decision)
	o.metrics.RecordGeneration(ctx, "recovery", err != nil)
	if err != nil {
		if _, ok := llm.IsContractError(err); !ok {
			return NodeSynthesize, err
		}
		// A broken recovery contract is handled like an exhausted budget.
		note := abandonNote(result)
		log.Warn("recovery decision failed contract, abandoning step", "tool", pending.Tool)
		state.AddNote(note)
		tr.AddEntry(transcript.EntryKindNote, note, nil)
		state.ClearPending()
		state.ClearQuality()
		return Route(state.RouteView(o.settings.maxSteps)), nil
	}

	var adjusted map[string]any
	if decision.Strategy == StrategyRetryDifferentArgs && len(decision.AdjustedArguments) > 0 {
		if validateErr := o.catalog.Registry().ValidateValue(ctx, def.Args.Name, decision.AdjustedArguments); validateErr == nil {
			adjusted = decision.AdjustedArguments
		} else {
			// Invalid adjustments degrade to an identical retry rather
			// than feeding a known-bad call into the gateway.
			log.Debug("adjusted arguments failed the tool contract, retrying identical call",
				"tool", pending.Tool)
		}
	}
	log.Info("retrying failed step",
		"tool", pending.Tool, "strategy", decision.Strategy, "adjusted", adjusted != nil)
	state.ClearPending()
	state.ClearQuality()
	if err := state.RecordRetry(adjusted); err != nil {
		return NodeSynthesize, err
	}
	return NodeExecute, nil
}

func (o *Orchestrator) deferToHuman(state *TurnState, tr *transcript.Transcript, question string) Node {
	state.SetClarification(question)
	tr.AddEntry(transcript.EntryKindClarification, question, nil)
	state.ClearPending()
	state.ClearQuality()
	return NodeSynthesize
}

// abandonNote pre-formats the "unable to complete" line for one step. It
// names the tool by label only.
func abandonNote(result *tool.Result) string {
	switch result.ErrorCategory {
	case tool.ErrorNotFound:
		return fmt.Sprintf("The %s found no entry for what was requested.", result.ToolLabel)
	default:
		return fmt.Sprintf("The %s was unavailable, so that part of the answer is incomplete.", result.ToolLabel)
	}
}
