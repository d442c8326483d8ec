package orchestrator

import (
	"fmt"
	"strings"

	"github.com/roundslab/rounds/engine/attachment"
	llmadapter "github.com/roundslab/rounds/engine/llm/adapter"
	"github.com/roundslab/rounds/engine/llm/tokens"
	"github.com/roundslab/rounds/engine/tool"
)

// promptBuilder assembles node prompts under a token budget. History and
// accumulated results are trimmed oldest-first when a prompt would exceed
// the budget; the query and the task summary are never trimmed.
type promptBuilder struct {
	counter *tokens.Counter
	budget  int
}

func newPromptBuilder(counter *tokens.Counter, budget int) *promptBuilder {
	return &promptBuilder{counter: counter, budget: budget}
}

const (
	intentSystem = "You are the intake classifier for a clinical assistant. " +
		"Decide whether the query can be answered directly or needs reference data first. " +
		"Answer with the requested structure only."
	selectionSystem = "You choose the single next reference tool for a clinical assistant. " +
		"Pick exactly one tool, or none when the results gathered so far already cover the task. " +
		"Answer with the requested structure only."
	argumentsSystem = "You extract tool arguments from a clinical query. " +
		"Fill the requested fields from the query and hints; leave optional fields out when unsure. " +
		"Answer with the requested structure only."
	resultSystem = "You grade what a reference tool returned for a clinical assistant. " +
		"Judge only what the result contains, never what should happen next. " +
		"Answer with the requested structure only."
	recoverySystem = "A reference tool call failed with a transient error. " +
		"Decide whether to repeat the identical call or adjust its arguments first. " +
		"Answer with the requested structure only."
	synthesisSystem = "You are a careful clinical assistant. Compose the final answer from the " +
		"query and the gathered findings. Use only the findings supplied; state limitations " +
		"honestly; never invent data that is not present."
)

// intentPrompt covers the query, the bounded history, and one line per
// attachment.
func (b *promptBuilder) intentPrompt(state *TurnState) (string, []llmadapter.Message) {
	var u strings.Builder
	writeHistory(&u, b.trimHistory(state.History(), intentSystem, state.Query()))
	for _, line := range attachment.Describe(state.Attachments()) {
		u.WriteString(line)
		u.WriteByte('\n')
	}
	u.WriteString("Query: ")
	u.WriteString(state.Query())
	return intentSystem, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: u.String()}}
}

// selectionPrompt lists every registered tool and, from the second loop
// iteration on, the concrete outcomes so far: the model sees real
// results before picking the next step, one decision at a time.
func (b *promptBuilder) selectionPrompt(state *TurnState, defs []*tool.Definition) (string, []llmadapter.Message) {
	var u strings.Builder
	u.WriteString("Task: ")
	u.WriteString(state.TaskSummary())
	u.WriteString("\nQuery: ")
	u.WriteString(state.Query())
	u.WriteString("\n\nAvailable tools:\n")
	for _, def := range defs {
		fmt.Fprintf(&u, "  - %s: %s\n", def.Name, def.Description)
	}
	if hint := state.SuggestedTool(); hint != "" && len(state.Results()) == 0 {
		fmt.Fprintf(&u, "\nInitial hint (non-binding): %s\n", hint)
	}
	b.writeResults(&u, state, selectionSystem)
	u.WriteString("\nPick the single next tool, or none if the results above already cover the task.")
	return selectionSystem, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: u.String()}}
}

// argumentsPrompt is selection stage two: the chosen tool's contract
// rendered critical-field-first, with entity hints quoted verbatim.
func (b *promptBuilder) argumentsPrompt(state *TurnState, def *tool.Definition) (string, []llmadapter.Message) {
	var u strings.Builder
	u.WriteString("Task: ")
	u.WriteString(state.TaskSummary())
	u.WriteString("\nQuery: ")
	u.WriteString(state.Query())
	fmt.Fprintf(&u, "\n\nExtract the arguments for the %s.\nFields, in order:\n", def.Label)
	u.WriteString(def.Args.Describe())
	if hints := state.Analysis().Entities.Hints(); len(hints) > 0 {
		u.WriteString("\nHints from the query:\n")
		for _, hint := range hints {
			u.WriteString("  ")
			u.WriteString(hint)
			u.WriteByte('\n')
		}
	}
	b.writeResults(&u, state, argumentsSystem)
	return argumentsSystem, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: u.String()}}
}

// resultPrompt shows the rendered result text only: labels, never
// internal identifiers, and never raw payloads.
func (b *promptBuilder) resultPrompt(state *TurnState, result *tool.Result) (string, []llmadapter.Message) {
	var u strings.Builder
	u.WriteString("Task: ")
	u.WriteString(state.TaskSummary())
	fmt.Fprintf(&u, "\n\nThe %s returned:\n%s\n\nGrade this result.", result.ToolLabel, result.RenderedText)
	return resultSystem, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: u.String()}}
}

// recoveryPrompt covers the one narrow model-assisted recovery choice.
func (b *promptBuilder) recoveryPrompt(state *TurnState, pending *Recovery, def *tool.Definition) (string, []llmadapter.Message) {
	var u strings.Builder
	u.WriteString("Task: ")
	u.WriteString(state.TaskSummary())
	fmt.Fprintf(&u, "\n\nThe %s failed transiently.\n", pending.Result.ToolLabel)
	fmt.Fprintf(&u, "Outcome: %s\n", pending.Result.RenderedText)
	u.WriteString("Arguments used:\n")
	for _, field := range def.Args.Fields {
		if value, ok := pending.Arguments[field.Name]; ok {
			fmt.Fprintf(&u, "  %s: %v\n", field.Name, value)
		}
	}
	u.WriteString("\nArgument fields, in order:\n")
	u.WriteString(def.Args.Describe())
	u.WriteString("\nDecide: retry the identical call, or adjust the arguments first.")
	return recoverySystem, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: u.String()}}
}

// synthesisPrompt assembles everything the final answer may draw on: the
// query, the task summary, every rendered result in invocation order, and
// the limitation notes.
func (b *promptBuilder) synthesisPrompt(state *TurnState) (string, []llmadapter.Message) {
	var u strings.Builder
	writeHistory(&u, b.trimHistory(state.History(), synthesisSystem, state.Query()))
	u.WriteString("Query: ")
	u.WriteString(state.Query())
	if summary := state.TaskSummary(); summary != "" {
		u.WriteString("\nTask: ")
		u.WriteString(summary)
	}
	b.writeResults(&u, state, synthesisSystem)
	if notes := state.Notes(); len(notes) > 0 {
		u.WriteString("\nLimitations to acknowledge:\n")
		for _, note := range notes {
			u.WriteString("  - ")
			u.WriteString(note)
			u.WriteByte('\n')
		}
	}
	u.WriteString("\nCompose the answer.")
	return synthesisSystem, []llmadapter.Message{{Role: llmadapter.RoleUser, Content: u.String()}}
}

// writeResults appends the rendered findings, trimming oldest-first when
// the prompt would blow the token budget. At least the latest result
// always survives trimming.
func (b *promptBuilder) writeResults(u *strings.Builder, state *TurnState, system string) {
	results := state.Results()
	if len(results) == 0 {
		return
	}
	spent := b.counter.Count(system) + b.counter.Count(u.String())
	lines := make([]string, len(results))
	costs := make([]int, len(results))
	total := 0
	for i := range results {
		lines[i] = fmt.Sprintf("  %d. [%s] %s\n", i+1, results[i].ToolLabel, results[i].RenderedText)
		costs[i] = b.counter.Count(lines[i])
		total += costs[i]
	}
	first := 0
	for b.budget > 0 && first < len(lines)-1 && spent+total > b.budget {
		total -= costs[first]
		first++
	}
	u.WriteString("\nResults so far:\n")
	if first > 0 {
		fmt.Fprintf(u, "  (%d earlier results omitted)\n", first)
	}
	for _, line := range lines[first:] {
		u.WriteString(line)
	}
}

// trimHistory drops the oldest exchanges until the window fits the budget
// alongside the system text and query.
func (b *promptBuilder) trimHistory(history []Exchange, system, query string) []Exchange {
	if b.budget <= 0 {
		return history
	}
	spent := b.counter.Count(system) + b.counter.Count(query)
	for len(history) > 0 {
		total := spent
		for _, exchange := range history {
			total += b.counter.Count(exchange.Query) + b.counter.Count(exchange.Response)
		}
		if total <= b.budget {
			break
		}
		history = history[1:]
	}
	return history
}

func writeHistory(u *strings.Builder, history []Exchange) {
	if len(history) == 0 {
		return
	}
	u.WriteString("Conversation so far:\n")
	for _, exchange := range history {
		fmt.Fprintf(u, "  User: %s\n  Assistant: %s\n", exchange.Query, exchange.Response)
	}
	u.WriteByte('\n')
}
