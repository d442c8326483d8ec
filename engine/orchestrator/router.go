package orchestrator

import "github.com/roundslab/rounds/engine/core"

// Node identifies one step of the turn state machine.
type Node string

const (
	NodeClassifyIntent Node = "classify_intent"
	NodeSelectTool     Node = "select_tool"
	NodeExecute        Node = "execute"
	NodeClassify       Node = "classify_result"
	NodeRecover        Node = "recover"
	NodeSynthesize     Node = "synthesize"
	NodeDirectDone     Node = "direct_done"
)

// Terminal reports whether the node ends the turn.
func (n Node) Terminal() bool {
	return n == NodeSynthesize || n == NodeDirectDone
}

// RouteView is the value snapshot Route decides on.
type RouteView struct {
	LastQuality          core.ResultQuality
	StepCount            int
	MaxSteps             int
	StuckLoop            bool
	PatternSatisfied     bool
	NoneStreak           int
	ClarificationPending bool
}

// Route is the deterministic router: a pure function from a state snapshot
// to the next node. It never calls the generation backend, and the
// transition order is load-bearing: error recovery preempts every
// termination check, and the ceilings preempt the sufficiency check so a
// runaway loop can never outlast its budget.
func Route(v RouteView) Node {
	if v.LastQuality.IsError() {
		return NodeRecover
	}
	if v.ClarificationPending {
		return NodeSynthesize
	}
	if v.StepCount >= v.MaxSteps {
		return NodeSynthesize
	}
	if v.StuckLoop {
		return NodeSynthesize
	}
	if v.PatternSatisfied {
		return NodeSynthesize
	}
	// A single "none" from the selector is a hint, not a verdict; only two
	// in a row force synthesis.
	if v.NoneStreak >= 2 {
		return NodeSynthesize
	}
	return NodeSelectTool
}
