package orchestrator

import (
	"fmt"
	"strings"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/schema"
	"github.com/roundslab/rounds/engine/tool"
)

// Contract names used by the decision nodes.
const (
	ContractIntent    = "intent_classification"
	ContractSelection = "tool_selection"
	ContractResult    = "result_classification"
	ContractRecovery  = "recovery_strategy"
)

// ToolNone is the selector's sentinel for "no more steps believed
// necessary". The router treats it as a hint, never as authoritative.
const ToolNone = "none"

// IntentDecision is the validated output of the Intent Classifier.
type IntentDecision struct {
	Intent        string `json:"intent"`
	TaskSummary   string `json:"task_summary"`
	SuggestedTool string `json:"suggested_tool,omitempty"`
}

// ToolChoice is the validated output of selection stage one. The contract
// has exactly one field: with no optional fields trailing a required one,
// the null-cascade failure mode has nothing to cascade into.
type ToolChoice struct {
	ToolName string `json:"tool_name"`
}

// ResultAssessment is the validated output of the Result Classifier.
type ResultAssessment struct {
	Quality      string `json:"quality"`
	BriefSummary string `json:"brief_summary"`
}

// RecoveryDecision is the validated output of the Error Classifier's one
// model-assisted choice.
type RecoveryDecision struct {
	Strategy          string         `json:"strategy"`
	AdjustedArguments map[string]any `json:"adjusted_arguments,omitempty"`
}

// Recovery strategies.
const (
	StrategyRetrySame          = "retry_same"
	StrategyRetryDifferentArgs = "retry_different_args"
)

// registerContracts places every decision contract in the registry. The
// selection enum is derived from the catalog, so registration happens once
// the tool set is final.
func registerContracts(registry *schema.Registry, catalog *tool.Catalog) error {
	contracts := []*schema.Contract{
		intentContract(),
		selectionContract(catalog),
		resultContract(),
		recoveryContract(),
	}
	for _, contract := range contracts {
		if err := registry.Register(contract); err != nil {
			return fmt.Errorf("failed to register contract %s: %w", contract.Name, err)
		}
	}
	return nil
}

func intentContract() *schema.Contract {
	return &schema.Contract{
		Name:        ContractIntent,
		Description: "Classify whether the query needs reference tools.",
		Strict:      true,
		Fields: []schema.Field{
			{
				Name:        "intent",
				Type:        "string",
				Description: "direct when the query is answerable from general knowledge, tool_needed when reference data must be looked up first.",
				Required:    true,
				Enum:        []string{string(core.IntentDirect), string(core.IntentToolNeeded)},
			},
			{
				Name:        "task_summary",
				Type:        "string",
				Description: "Restate the task in at most 50 words.",
				Required:    true,
			},
			{
				Name:        "suggested_tool",
				Type:        "string",
				Description: "Optional: the tool most likely needed first.",
			},
		},
	}
}

func selectionContract(catalog *tool.Catalog) *schema.Contract {
	names := append(catalog.Names(), ToolNone)
	return &schema.Contract{
		Name:        ContractSelection,
		Description: "Pick exactly one next tool, or none when no further step is needed.",
		Strict:      true,
		Fields: []schema.Field{
			{
				Name:        "tool_name",
				Type:        "string",
				Description: "The single next tool to invoke. Pick none when the gathered results already cover the task.",
				Required:    true,
				Enum:        names,
			},
		},
	}
}

func resultContract() *schema.Contract {
	return &schema.Contract{
		Name:        ContractResult,
		Description: "Grade what the last tool invocation produced. Judge only what happened, not what to do next.",
		Strict:      true,
		Fields: []schema.Field{
			{
				Name:        "quality",
				Type:        "string",
				Description: "success_rich: substantial usable data. success_partial: some usable data with gaps. no_results: the call worked but found nothing.",
				Required:    true,
				Enum:        core.QualityValues(),
			},
			{
				Name:        "brief_summary",
				Type:        "string",
				Description: "One sentence on what the result contains.",
				Required:    true,
			},
		},
	}
}

func recoveryContract() *schema.Contract {
	return &schema.Contract{
		Name:        ContractRecovery,
		Description: "Choose how to retry a failed tool call.",
		Strict:      true,
		Fields: []schema.Field{
			{
				Name:        "strategy",
				Type:        "string",
				Description: "retry_same to repeat the identical call, retry_different_args to adjust the arguments first.",
				Required:    true,
				Enum:        []string{StrategyRetrySame, StrategyRetryDifferentArgs},
			},
			{
				Name:        "adjusted_arguments",
				Type:        "object",
				Description: "Replacement arguments, only with retry_different_args.",
			},
		},
	}
}

// qualityForError maps a tool failure onto a grade without a generation
// call. Keeping this deterministic is what lets the defer-to-human and
// abandon tiers run with zero backend involvement.
func qualityForError(category tool.ErrorCategory) core.ResultQuality {
	if category.Retryable() {
		return core.QualityErrorRetryable
	}
	return core.QualityErrorFatal
}

// qualityFromAssessment parses the model's grade, constraining it to the
// success half of the enum: a model may not flag an error the gateway did
// not report.
func qualityFromAssessment(assessment *ResultAssessment) (core.ResultQuality, error) {
	quality := core.ResultQuality(assessment.Quality)
	if !quality.Valid() {
		return "", core.NewError(nil, "INVALID_QUALITY", map[string]any{"quality": assessment.Quality})
	}
	if quality.IsError() {
		return core.QualitySuccessPartial, nil
	}
	return quality, nil
}

// clarificationForCandidates renders the defer-to-human question for an
// ambiguous entity match.
func clarificationForCandidates(label string, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s found more than one possible match. Which did you mean?\n", label)
	for _, candidate := range candidates {
		b.WriteString("  - ")
		b.WriteString(candidate)
		b.WriteByte('\n')
	}
	b.WriteString("Please reply with the one you meant and I will continue.")
	return b.String()
}

// clarificationForMissingArg renders the defer-to-human question for a
// required argument only the user can supply.
func clarificationForMissingArg(label, field string) string {
	return fmt.Sprintf(
		"I need one more detail before I can use the %s: please provide the %s.",
		label, strings.ReplaceAll(field, "_", " "),
	)
}
