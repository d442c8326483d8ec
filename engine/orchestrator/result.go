package orchestrator

import (
	"context"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/llm"
	"github.com/roundslab/rounds/engine/tool"
	"github.com/roundslab/rounds/pkg/logger"
)

// classifyResult grades the latest invocation. Errors never burn a
// generation call: their grade follows deterministically from the error
// category, and the failure is parked for the Error Classifier. Only the
// judgment the model is actually good at, how substantial the data is,
// goes to the backend.
func (o *Orchestrator) classifyResult(ctx context.Context, state *TurnState) error {
	results := state.Results()
	if len(results) == 0 {
		return core.NewError(nil, "NO_RESULT_TO_CLASSIFY", nil)
	}
	last := results[len(results)-1]

	if last.IsError() {
		state.SetPending(&Recovery{
			Result:    &last,
			Tool:      last.ToolName,
			Arguments: last.Arguments,
		})
		return state.SetQuality(qualityForError(last.ErrorCategory))
	}

	system, messages := o.prompts.resultPrompt(state, &last)
	var assessment ResultAssessment
	err := o.client.GenerateObject(ctx, &llm.ObjectRequest{
		System:   system,
		Messages: messages,
		Params:   o.settings.classifyParams(),
		Contract: ContractResult,
	}, &assessment)
	o.metrics.RecordGeneration(ctx, "result", err != nil)
	if err != nil {
		// The grade is advisory; a classifier that cannot keep its
		// contract must not sink a turn that holds real data. Degrade to
		// the conservative grade for what the gateway reported.
		if _, ok := llm.IsContractError(err); !ok {
			return err
		}
		logger.FromContext(ctx).Warn("result classification failed contract, using conservative grade",
			"tool", last.ToolName)
		if last.Outcome == tool.OutcomeEmpty {
			return state.SetQuality(core.QualityNoResults)
		}
		return state.SetQuality(core.QualitySuccessPartial)
	}
	quality, err := qualityFromAssessment(&assessment)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("result graded",
		"tool", last.ToolName, "quality", quality.String(), "summary", assessment.BriefSummary)
	return state.SetQuality(quality)
}
