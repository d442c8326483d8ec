package orchestrator

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/roundslab/rounds/engine/attachment"
	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/engine/pattern"
	"github.com/roundslab/rounds/engine/tool"
)

// ErrTurnFinished is returned when a mutation arrives after Finish.
var ErrTurnFinished = errors.New("orchestrator: turn already finished")

// Exchange is one prior turn of the conversation, most recent last.
type Exchange struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Recovery is present on the state only while the Error Classifier is
// deciding what to do about a failed invocation.
type Recovery struct {
	Result    *tool.Result
	Tool      string
	Arguments map[string]any
}

// TurnState is the mutable record of one user turn. All fields are
// unexported; every invariant (append-only results, monotone counters,
// write-once final response) is enforced by the methods, which are the
// only way nodes touch the state. One goroutine owns a TurnState for the
// turn's whole lifetime.
type TurnState struct {
	turnID      core.ID
	sessionID   string
	query       string
	history     []Exchange
	attachments []attachment.Attachment
	analysis    pattern.Analysis

	intent        core.Intent
	taskSummary   string
	suggestedTool string

	results          []tool.Result
	stepCount        int
	retryCurrentTool int
	retryTotal       int
	lastQuality      core.ResultQuality

	// selection streak, used by the stuck-loop guard. Only the selector
	// updates it; recovery-driven retries of the same call are deliberate
	// repeats and bypass it.
	selectedTool string
	selectedArgs map[string]any
	selectedKey  string
	previousKey  string
	stuckLoop    bool
	noneStreak   int

	pending       *Recovery
	notes         []string
	clarification string

	finalResponse string
	outcome       string
	finished      bool
}

func newTurnState(turnID core.ID, in Input, analysis pattern.Analysis, historyWindow int) *TurnState {
	history := in.History
	if historyWindow > 0 && len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	return &TurnState{
		turnID:      turnID,
		sessionID:   in.SessionID,
		query:       in.Query,
		history:     append([]Exchange(nil), history...),
		attachments: append([]attachment.Attachment(nil), in.Attachments...),
		analysis:    analysis,
	}
}

// TurnID returns the turn identifier.
func (s *TurnState) TurnID() core.ID { return s.turnID }

// Query returns the user's message for this turn.
func (s *TurnState) Query() string { return s.query }

// History returns the bounded conversation window.
func (s *TurnState) History() []Exchange { return append([]Exchange(nil), s.history...) }

// Attachments returns the turn's resolved attachments.
func (s *TurnState) Attachments() []attachment.Attachment {
	return append([]attachment.Attachment(nil), s.attachments...)
}

// Analysis returns the pattern-table analysis the turn runs against.
func (s *TurnState) Analysis() pattern.Analysis { return s.analysis }

// SetIntent records the Intent Classifier's verdict.
func (s *TurnState) SetIntent(intent core.Intent, taskSummary, suggestedTool string) error {
	if s.finished {
		return ErrTurnFinished
	}
	if !intent.Valid() {
		return core.NewError(nil, "INVALID_INTENT", map[string]any{"intent": string(intent)})
	}
	s.intent = intent
	s.taskSummary = taskSummary
	s.suggestedTool = suggestedTool
	return nil
}

// Intent returns the classified intent.
func (s *TurnState) Intent() core.Intent { return s.intent }

// TaskSummary returns the classifier's one-line task restatement.
func (s *TurnState) TaskSummary() string { return s.taskSummary }

// SuggestedTool returns the classifier's non-binding tool hint.
func (s *TurnState) SuggestedTool() string { return s.suggestedTool }

// RecordSelection notes the selector's choice for the next invocation.
// Choosing a different tool resets the per-tool retry counter; choosing
// the same tool with the same canonical arguments as the previous
// selection arms the stuck-loop guard.
func (s *TurnState) RecordSelection(toolName string, args map[string]any) error {
	if s.finished {
		return ErrTurnFinished
	}
	if toolName != s.selectedTool {
		s.retryCurrentTool = 0
	}
	key := canonicalArgsKey(toolName, args)
	s.stuckLoop = key == s.previousKey && s.previousKey != ""
	s.previousKey = key
	s.selectedTool = toolName
	s.selectedArgs = args
	s.selectedKey = key
	s.noneStreak = 0
	return nil
}

// RecordNoneSelection notes that the selector picked the "none" sentinel.
// The sentinel still consumes a step so the loop provably terminates.
func (s *TurnState) RecordNoneSelection() error {
	if s.finished {
		return ErrTurnFinished
	}
	s.noneStreak++
	s.stepCount++
	s.lastQuality = ""
	s.selectedTool = ""
	s.selectedArgs = nil
	s.selectedKey = ""
	return nil
}

// SelectedTool returns the tool queued for the next invocation.
func (s *TurnState) SelectedTool() string { return s.selectedTool }

// SelectedArgs returns the arguments queued for the next invocation.
func (s *TurnState) SelectedArgs() map[string]any { return s.selectedArgs }

// RecordRetry queues a recovery-driven repeat of the current tool. The
// retry counters advance; the selection streak does not, so a deliberate
// identical retry never trips the stuck-loop guard.
func (s *TurnState) RecordRetry(args map[string]any) error {
	if s.finished {
		return ErrTurnFinished
	}
	if args != nil {
		s.selectedArgs = args
		s.selectedKey = canonicalArgsKey(s.selectedTool, args)
	}
	s.retryCurrentTool++
	s.retryTotal++
	return nil
}

// AppendResult adds one invocation result. Results are append-only: no
// entry is ever edited, preserving the audit trail.
func (s *TurnState) AppendResult(result *tool.Result) error {
	if s.finished {
		return ErrTurnFinished
	}
	if result == nil {
		return core.NewError(nil, "NIL_RESULT", nil)
	}
	s.results = append(s.results, *result)
	s.stepCount++
	return nil
}

// Results returns a copy of the accumulated invocation results in true
// invocation order.
func (s *TurnState) Results() []tool.Result {
	return append([]tool.Result(nil), s.results...)
}

// StepCount returns the number of loop iterations consumed so far.
func (s *TurnState) StepCount() int { return s.stepCount }

// RetryCurrentTool returns the retry count for the currently selected tool.
func (s *TurnState) RetryCurrentTool() int { return s.retryCurrentTool }

// RetryTotal returns the turn-wide retry count.
func (s *TurnState) RetryTotal() int { return s.retryTotal }

// SetQuality records the Result Classifier's grade for the latest result.
func (s *TurnState) SetQuality(quality core.ResultQuality) error {
	if s.finished {
		return ErrTurnFinished
	}
	if !quality.Valid() {
		return core.NewError(nil, "INVALID_QUALITY", map[string]any{"quality": string(quality)})
	}
	s.lastQuality = quality
	return nil
}

// LastQuality returns the latest grade, or empty before any invocation.
func (s *TurnState) LastQuality() core.ResultQuality { return s.lastQuality }

// ClearQuality resets the grade after recovery settles a failure, so the
// router stops diverting to the Error Classifier.
func (s *TurnState) ClearQuality() { s.lastQuality = "" }

// SetPending installs the failure the Error Classifier is working on.
func (s *TurnState) SetPending(r *Recovery) { s.pending = r }

// Pending returns the in-flight recovery, if any.
func (s *TurnState) Pending() *Recovery { return s.pending }

// ClearPending removes the recovery record once the decision is made.
func (s *TurnState) ClearPending() { s.pending = nil }

// AddNote appends a pre-formatted limitation note for the Synthesizer.
func (s *TurnState) AddNote(note string) {
	if note == "" {
		return
	}
	s.notes = append(s.notes, note)
}

// Notes returns the accumulated limitation notes.
func (s *TurnState) Notes() []string { return append([]string(nil), s.notes...) }

// SetClarification installs the pre-rendered defer-to-human question. The
// Synthesizer delivers it verbatim.
func (s *TurnState) SetClarification(text string) { s.clarification = text }

// Clarification returns the pending clarification question, if any.
func (s *TurnState) Clarification() string { return s.clarification }

// Finish sets the final response exactly once and closes the turn.
func (s *TurnState) Finish(response, outcome string) error {
	if s.finished {
		return ErrTurnFinished
	}
	if strings.TrimSpace(response) == "" {
		return core.NewError(nil, "EMPTY_RESPONSE", map[string]any{"turn_id": s.turnID.String()})
	}
	s.finalResponse = response
	s.outcome = outcome
	s.finished = true
	return nil
}

// Finished reports whether a terminal node has run.
func (s *TurnState) Finished() bool { return s.finished }

// FinalResponse returns the response set by the terminal node.
func (s *TurnState) FinalResponse() string { return s.finalResponse }

// Outcome returns the terminal outcome label.
func (s *TurnState) Outcome() string { return s.outcome }

// SucceededCategories returns the tool categories with at least one
// successful invocation so far.
func (s *TurnState) SucceededCategories() map[string]bool {
	out := make(map[string]bool)
	for i := range s.results {
		if s.results[i].Outcome == tool.OutcomeSuccess && s.results[i].Category != "" {
			out[s.results[i].Category] = true
		}
	}
	return out
}

// patternSatisfied implements the deterministic sufficiency substitute: a
// matched pattern is satisfied when its required categories are a subset
// of the categories invoked successfully; an unmatched query is satisfied
// after the first successful call.
func (s *TurnState) patternSatisfied() bool {
	succeeded := s.SucceededCategories()
	required := s.analysis.RequiredCategories()
	if len(required) == 0 {
		return len(succeeded) > 0
	}
	for _, category := range required {
		if !succeeded[category] {
			return false
		}
	}
	return true
}

// RouteView snapshots everything the router's pure transition function
// reads. Building a value keeps Route free of state access and trivially
// testable.
func (s *TurnState) RouteView(maxSteps int) RouteView {
	return RouteView{
		LastQuality:          s.lastQuality,
		StepCount:            s.stepCount,
		MaxSteps:             maxSteps,
		StuckLoop:            s.stuckLoop,
		PatternSatisfied:     s.patternSatisfied(),
		NoneStreak:           s.noneStreak,
		ClarificationPending: s.clarification != "",
	}
}

// canonicalArgsKey builds a stable identity for a tool+arguments pair.
// json.Marshal sorts map keys, so semantically identical argument maps
// produce identical keys.
func canonicalArgsKey(toolName string, args map[string]any) string {
	if len(args) == 0 {
		return toolName + "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		// Unmarshalable arguments cannot come from validated tool calls;
		// fall back to the sorted key names.
		names := make([]string, 0, len(args))
		for name := range args {
			names = append(names, name)
		}
		sort.Strings(names)
		return toolName + "{" + strings.Join(names, ",") + "}"
	}
	return toolName + string(data)
}
