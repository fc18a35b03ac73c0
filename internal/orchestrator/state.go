// ============================================================================
// Conflict Engine - Orchestrator State Machine
// ============================================================================
//
// Package: internal/orchestrator
// File: state.go
// Purpose: States and the single transition function of a run
//
// Transition graph:
//
//   consolidate ──▶ detect ──(conflicts)──▶ generate ──(ok)──▶ rank ──▶ end
//                     │                        │
//                     └──(none)──▶ end         └──(generation_failed)──▶ end
//
//   feedback ──▶ analyze_patterns ──▶ adjust_weights ──(trigger && iterations < 3)──▶ detect
//                                          │
//                                          └──▶ end
//
// Any state whose stage left the run failed goes straight to end.
// No other transitions exist.
//
// ============================================================================

package orchestrator

import (
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// State is a node of the run state machine
type State string

const (
	StateConsolidate     State = "consolidate"
	StateDetect          State = "detect"
	StateGenerate        State = "generate"
	StateRank            State = "rank"
	StateFeedback        State = "feedback"
	StateAnalyzePatterns State = "analyze_patterns"
	StateAdjustWeights   State = "adjust_weights"
	StateEnd             State = "end"
)

// MaxIterations caps feedback-driven re-entries into detect per execution id
const MaxIterations = 3

// Next returns the state that follows s once its stage has produced rc
func Next(s State, rc types.RunContext) State {
	if rc.Stage == types.StageFailed {
		return StateEnd
	}

	switch s {
	case StateConsolidate:
		return StateDetect
	case StateDetect:
		if len(rc.Conflicts) > 0 {
			return StateGenerate
		}
		return StateEnd
	case StateGenerate:
		if rc.Stage == types.StageGenerationFailed {
			return StateEnd
		}
		return StateRank
	case StateFeedback:
		return StateAnalyzePatterns
	case StateAnalyzePatterns:
		return StateAdjustWeights
	case StateAdjustWeights:
		if rc.Iterations < MaxIterations && rc.TriggerPatternAnalysis {
			return StateDetect
		}
		return StateEnd
	default:
		// rank, end and anything unknown
		return StateEnd
	}
}

// isLoopback reports whether moving from s to next re-enters detection
func isLoopback(s, next State) bool {
	return s == StateAdjustWeights && next == StateDetect
}
