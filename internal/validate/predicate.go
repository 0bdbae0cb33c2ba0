package validate

import (
	"github.com/clearbill/scengen/internal/rulebook"
	"github.com/clearbill/scengen/internal/scenario"
)

// Outcome is the three-valued result of a precondition check. An
// unverifiable outcome is not a failure: it marks a check the engine
// has no native evaluator for, deferred to the oracle's own judgment.
type Outcome int

const (
	OutcomeSatisfied Outcome = iota
	OutcomeViolated
	OutcomeUnverifiable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSatisfied:
		return "satisfied"
	case OutcomeViolated:
		return "violated"
	default:
		return "unverifiable"
	}
}

// Evaluator decides one precondition against the prior frame.
type Evaluator func(pre rulebook.Precondition, prior scenario.Frame) Outcome

// Registry maps precondition check types onto evaluators. Check types
// without a registered evaluator degrade to unverifiable. The registry
// is populated before generation starts and read-only afterwards, so it
// is shared across concurrent jobs without locking.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry returns a registry with the native evaluators installed.
func NewRegistry() *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator)}
	r.Register("claim_status.must_be_in", evalClaimStatus)
	r.Register("no_pending_appeal.appeal_reference_is_null", evalNoPendingAppeal)
	return r
}

// Register installs an evaluator for a check type, replacing any
// previous one.
func (r *Registry) Register(checkType string, fn Evaluator) {
	r.evaluators[checkType] = fn
}

// Evaluate runs the precondition against the prior frame.
func (r *Registry) Evaluate(pre rulebook.Precondition, prior scenario.Frame) Outcome {
	fn, ok := r.evaluators[pre.CheckType()]
	if !ok {
		return OutcomeUnverifiable
	}
	return fn(pre, prior)
}

func evalClaimStatus(pre rulebook.Precondition, prior scenario.Frame) Outcome {
	status := prior.AccountState.Claim().String("status")
	for _, allowed := range pre.MustBeIn {
		if status == allowed {
			return OutcomeSatisfied
		}
	}
	return OutcomeViolated
}

func evalNoPendingAppeal(_ rulebook.Precondition, prior scenario.Frame) Outcome {
	claim := prior.AccountState.Claim()
	if claim.Has("appeal_reference") && claim.String("appeal_reference") != "" {
		return OutcomeViolated
	}
	return OutcomeSatisfied
}
