package protocol

import (
	"strings"
)

// Kind is the closed set of block types. KindUnknown keeps blocks with an
// unrecognized type decodable.
type Kind string

const (
	KindUnknown  Kind = ""
	KindPlan     Kind = "plan"
	KindResult   Kind = "result"
	KindStatus   Kind = "status"
	KindError    Kind = "error"
	KindComplete Kind = "complete"
	KindContinue Kind = "continue"
	KindRevision Kind = "revision"
)

var knownKinds = []Kind{
	KindPlan,
	KindResult,
	KindStatus,
	KindError,
	KindComplete,
	KindContinue,
	KindRevision,
}

// Kinds returns every known kind in wire order.
func Kinds() []Kind {
	return append([]Kind(nil), knownKinds...)
}

func ParseKind(value string) Kind {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range knownKinds {
		if kind == normalized {
			return kind
		}
	}
	return KindUnknown
}

func (k Kind) Known() bool {
	return k != KindUnknown
}

func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

// PlannerKinds are the kinds a Planner may emit to drive the dialogue.
var PlannerKinds = []Kind{KindPlan, KindContinue, KindRevision, KindComplete}

// ReviewKinds are the verdicts a Planner may give after reviewing a result.
var ReviewKinds = []Kind{KindContinue, KindRevision, KindComplete}

// ExecuterKinds are the kinds an Executer emits while working on a step.
var ExecuterKinds = []Kind{KindResult, KindError, KindStatus}

// Instruction reports whether the kind carries work for the Executer.
func (k Kind) Instruction() bool {
	switch k {
	case KindPlan, KindContinue, KindRevision:
		return true
	default:
		return false
	}
}

// Outcome reports whether the kind closes an Executer step.
func (k Kind) Outcome() bool {
	return k == KindResult || k == KindError
}
