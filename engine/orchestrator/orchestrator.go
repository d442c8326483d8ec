// Package orchestrator drives one conversational turn to completion: a
// single intent classification, then a reactive select/execute/classify
// loop over the tool gateway, with a deterministic router deciding every
// transition and layered error recovery on failures. The generation
// backend is only ever asked the narrow judgments it is reliable at;
// planning, sufficiency, defer-to-human, and abandonment are code.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/roundslab/rounds/engine/attachment"
	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/infra/monitoring"
	"github.com/roundslab/rounds/engine/llm"
	"github.com/roundslab/rounds/engine/llm/tokens"
	"github.com/roundslab/rounds/engine/pattern"
	"github.com/roundslab/rounds/engine/streaming"
	"github.com/roundslab/rounds/engine/tool"
	"github.com/roundslab/rounds/engine/transcript"
	"github.com/roundslab/rounds/pkg/config"
	"github.com/roundslab/rounds/pkg/logger"
)

// Turn outcome labels.
const (
	OutcomeDirect        = "direct"
	OutcomeSynthesized   = "synthesized"
	OutcomeClarification = "clarification"
	OutcomeFallback      = "fallback"
)

const fallbackResponse = "I wasn't able to complete this request. " +
	"Please try again, or rephrase it with a bit more detail."

// Input starts one turn.
type Input struct {
	SessionID   string
	Query       string
	History     []Exchange
	Attachments []attachment.Attachment
}

// Outcome is what a completed turn hands back to the caller.
type Outcome struct {
	TurnID     core.ID
	SessionID  string
	Intent     core.Intent
	Outcome    string
	Response   string
	Results    []tool.Result
	Transcript *transcript.Transcript
	// RetryCurrentTool and RetryTotal are the recovery retry counters at
	// turn end: retries of the last selected tool and turn-wide.
	RetryCurrentTool int
	RetryTotal       int
}

// settings is the immutable per-process call policy, copied out of the
// configuration at construction. Nothing re-reads config mid-turn.
type settings struct {
	maxSteps             int
	maxRetriesPerTool    int
	maxTotalRetries      int
	historyWindow        int
	classifyMaxTokens    int32
	classifyTemperature  float64
	synthesisMaxTokens   int32
	synthesisTemperature float64
}

// classifyParams is the call policy every decision node shares: a tight
// token ceiling and an explicit temperature (0 by default) so the grading
// calls run at the backend's most deterministic setting.
func (s settings) classifyParams() core.PromptParams {
	return core.PromptParams{
		MaxTokens:   s.classifyMaxTokens,
		Temperature: core.Ptr(s.classifyTemperature),
	}
}

// Deps are the collaborators a turn runs against. Publisher, Store, and
// Metrics are optional; a nil value disables that concern.
type Deps struct {
	Client    *llm.Client
	Catalog   *tool.Catalog
	Gateway   *tool.Gateway
	Patterns  *pattern.Table
	Publisher streaming.Publisher
	Store     transcript.Store
	Metrics   *monitoring.Metrics
}

// Orchestrator runs turns. It is safe for concurrent use; each Run owns
// its TurnState exclusively and sessions serialize per session id.
type Orchestrator struct {
	client    *llm.Client
	catalog   *tool.Catalog
	gateway   *tool.Gateway
	patterns  *pattern.Table
	publisher streaming.Publisher
	store     transcript.Store
	metrics   *monitoring.Metrics
	prompts   *promptBuilder
	settings  settings
	sessions  *sessions
}

// New builds an orchestrator and registers the decision contracts. The
// tool catalog must be final: the selection contract's enum is derived
// from it here.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, core.NewError(nil, "INVALID_CONFIG", map[string]any{"reason": "nil config"})
	}
	if deps.Client == nil || deps.Catalog == nil || deps.Gateway == nil || deps.Patterns == nil {
		return nil, core.NewError(nil, "INVALID_DEPS", map[string]any{
			"reason": "client, catalog, gateway, and patterns are required",
		})
	}
	if err := registerContracts(deps.Catalog.Registry(), deps.Catalog); err != nil {
		return nil, err
	}
	counter := tokens.NewCounter(cfg.Generation.TokenEncoding)
	return &Orchestrator{
		client:    deps.Client,
		catalog:   deps.Catalog,
		gateway:   deps.Gateway,
		patterns:  deps.Patterns,
		publisher: deps.Publisher,
		store:     deps.Store,
		metrics:   deps.Metrics,
		prompts:   newPromptBuilder(counter, cfg.Limits.PromptTokenBudget),
		settings: settings{
			maxSteps:             cfg.Limits.MaxSteps,
			maxRetriesPerTool:    cfg.Limits.MaxRetriesPerTool,
			maxTotalRetries:      cfg.Limits.MaxTotalRetries,
			historyWindow:        cfg.Limits.HistoryWindow,
			classifyMaxTokens:    cfg.Generation.ClassifyMaxTokens,
			classifyTemperature:  cfg.Generation.ClassifyTemperature,
			synthesisMaxTokens:   cfg.Generation.SynthesisMaxTokens,
			synthesisTemperature: cfg.Generation.SynthesisTemperature,
		},
		sessions: newSessions(),
	}, nil
}

// Run processes one turn from query to final response. It returns an
// error only for caller-level faults (empty query, concurrent turn on the
// same session, cancellation); everything else ends in a turn with a
// non-empty response.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Outcome, error) {
	if in.Query == "" {
		return nil, core.NewError(nil, "EMPTY_QUERY", nil)
	}
	if err := o.sessions.acquire(in.SessionID); err != nil {
		return nil, err
	}
	defer o.sessions.release(in.SessionID)

	turnID, err := core.NewID()
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("turn_id", turnID.String())
	ctx = logger.ContextWithLogger(ctx, log)

	snapshot := o.patterns.Snapshot()
	analysis := snapshot.Analyze(ctx, in.Query, len(in.Attachments))
	state := newTurnState(turnID, in, analysis, o.settings.historyWindow)
	tr := transcript.New(turnID, in.SessionID, in.Query)
	tr.AddEntry(transcript.EntryKindUserMessage, in.Query, nil)

	o.publish(ctx, turnID, streaming.EventTypeTurnStart, map[string]any{
		"query":   in.Query,
		"pattern": analysis.PatternName(),
	})
	log.Info("turn started", "session_id", in.SessionID, "pattern", analysis.PatternName())

	if err := o.drive(ctx, state, tr); err != nil {
		o.publish(ctx, turnID, streaming.EventTypeError, map[string]any{
			"error": core.RedactError(err),
		})
		log.Warn("turn aborted", "error", core.RedactError(err))
		return nil, err
	}

	tr.AddEntry(transcript.EntryKindResponse, state.FinalResponse(), nil)
	tr.Complete(state.Outcome(), state.FinalResponse())
	o.saveTranscript(ctx, tr)
	o.metrics.RecordTurn(ctx, state.Outcome(), state.Intent().String())
	o.publish(ctx, turnID, streaming.EventTypeComplete, map[string]any{
		"outcome":  state.Outcome(),
		"response": state.FinalResponse(),
	})
	log.Info("turn completed", "outcome", state.Outcome(), "steps", state.StepCount())

	return &Outcome{
		TurnID:           turnID,
		SessionID:        in.SessionID,
		Intent:           state.Intent(),
		Outcome:          state.Outcome(),
		Response:         state.FinalResponse(),
		Results:          state.Results(),
		Transcript:       tr,
		RetryCurrentTool: state.RetryCurrentTool(),
		RetryTotal:       state.RetryTotal(),
	}, nil
}

// drive is the turn state machine: one intent classification, then the
// reactive loop. It is an explicit loop with a visible counter so the
// ceiling invariants live at a single call site.
func (o *Orchestrator) drive(ctx context.Context, state *TurnState, tr *transcript.Transcript) error {
	if err := o.runNode(ctx, state, tr, NodeClassifyIntent, o.classifyIntent); err != nil {
		if _, ok := llm.IsContractError(err); !ok {
			return err
		}
		// The classifier broke its contract twice; end the turn gracefully
		// with the generic fallback rather than guessing an intent.
		logger.FromContext(ctx).Warn("intent classification failed contract, falling back")
		return state.Finish(fallbackResponse, OutcomeFallback)
	}
	tr.AddEntry(transcript.EntryKindIntent, state.TaskSummary(), nil)

	if state.Intent() == core.IntentDirect {
		return o.runNode(ctx, state, tr, NodeDirectDone, func(ctx context.Context, s *TurnState) error {
			return o.synthesize(ctx, s, OutcomeDirect)
		})
	}

	node := NodeSelectTool
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch node {
		case NodeSelectTool:
			if err := o.runNode(ctx, state, tr, NodeSelectTool, o.selectTool); err != nil {
				if _, ok := llm.IsContractError(err); !ok {
					return err
				}
				logger.FromContext(ctx).Warn("tool selection failed contract, synthesizing from gathered results")
				state.AddNote("One planned lookup could not be prepared.")
				node = NodeSynthesize
				continue
			}
			if state.SelectedTool() == "" {
				// The sentinel "none": a hint for the router, not a verdict.
				node = Route(state.RouteView(o.settings.maxSteps))
				continue
			}
			node = NodeExecute
		case NodeExecute:
			if err := o.runNode(ctx, state, tr, NodeExecute, o.executeSelected); err != nil {
				return err
			}
			if results := state.Results(); len(results) > 0 {
				last := results[len(results)-1]
				tr.AddEntry(transcript.EntryKindToolCall, last.RenderedText, resultJSON(&last))
			}
			node = NodeClassify
		case NodeClassify:
			if err := o.runNode(ctx, state, tr, NodeClassify, o.classifyResult); err != nil {
				return err
			}
			node = Route(state.RouteView(o.settings.maxSteps))
		case NodeRecover:
			var next Node
			err := o.runNode(ctx, state, tr, NodeRecover, func(ctx context.Context, s *TurnState) error {
				n, recoverErr := o.recoverFailure(ctx, s, tr)
				next = n
				return recoverErr
			})
			if err != nil {
				return err
			}
			node = next
		case NodeSynthesize:
			return o.runNode(ctx, state, tr, NodeSynthesize, func(ctx context.Context, s *TurnState) error {
				outcome := OutcomeSynthesized
				if s.Clarification() != "" {
					outcome = OutcomeClarification
				}
				return o.synthesize(ctx, s, outcome)
			})
		default:
			return core.NewError(nil, "INVALID_NODE", map[string]any{"node": string(node)})
		}
	}
}

// executeSelected runs the queued tool call through the gateway and
// appends the envelope. The gateway owns timeout and detachment; here we
// only publish lifecycle events and keep the audit trail.
func (o *Orchestrator) executeSelected(ctx context.Context, state *TurnState) error {
	name := state.SelectedTool()
	o.publish(ctx, state.TurnID(), streaming.EventTypeToolCallStart, map[string]any{
		"tool_label": o.labelFor(name),
		"category":   o.catalog.CategoryOf(name),
	})
	result := o.gateway.Invoke(ctx, name, state.SelectedArgs())
	o.metrics.RecordToolCall(ctx, result.Category, string(result.Outcome))
	o.publish(ctx, state.TurnID(), streaming.EventTypeToolCallEnd, map[string]any{
		"tool_label":     result.ToolLabel,
		"outcome":        string(result.Outcome),
		"error_category": string(result.ErrorCategory),
		"duration_ms":    result.Duration.Milliseconds(),
		"display":        result.RenderedText,
	})
	return state.AppendResult(result)
}

type nodeFunc func(ctx context.Context, state *TurnState) error

// runNode wraps one node execution with events, timing, and metrics.
func (o *Orchestrator) runNode(ctx context.Context, state *TurnState, tr *transcript.Transcript, node Node, fn nodeFunc) error {
	iteration := state.StepCount()
	o.publish(ctx, state.TurnID(), streaming.EventTypeNodeStart, map[string]any{
		"node":      string(node),
		"iteration": iteration,
	})
	start := time.Now()
	err := fn(ctx, state)
	duration := time.Since(start)
	tr.AddTiming(string(node), iteration, start, duration)
	o.metrics.RecordNode(ctx, string(node), duration)
	o.publish(ctx, state.TurnID(), streaming.EventTypeNodeEnd, map[string]any{
		"node":        string(node),
		"iteration":   iteration,
		"duration_ms": duration.Milliseconds(),
		"failed":      err != nil,
	})
	return err
}

// publish sends one lifecycle event; a nil publisher disables streaming
// and publish failures never affect the turn.
func (o *Orchestrator) publish(ctx context.Context, turnID core.ID, eventType streaming.EventType, data map[string]any) {
	if o.publisher == nil {
		return
	}
	if _, err := o.publisher.Publish(ctx, turnID, streaming.Event{Type: eventType, Data: data}); err != nil {
		logger.FromContext(ctx).Warn("failed to publish turn event", "type", string(eventType), "error", err)
	}
}

func (o *Orchestrator) saveTranscript(ctx context.Context, tr *transcript.Transcript) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveTurn(ctx, tr); err != nil && !errors.Is(err, transcript.ErrDuplicateTurn) {
		logger.FromContext(ctx).Error("failed to save transcript", "turn_id", tr.TurnID.String(), "error", err)
	}
}

func (o *Orchestrator) labelFor(name string) string {
	if def, err := o.catalog.Get(name); err == nil {
		return def.Label
	}
	return "unknown tool"
}

// resultJSON renders a tool result for transcript payload storage.
func resultJSON(result *tool.Result) json.RawMessage {
	data, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return data
}
