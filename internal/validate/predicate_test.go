package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearbill/scengen/internal/rulebook"
	"github.com/clearbill/scengen/internal/scenario"
)

func frameWithClaim(claim scenario.Record) scenario.Frame {
	return scenario.Frame{AccountState: stateWith(claim, nil)}
}

func TestEvaluateClaimStatus(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	pre := rulebook.Precondition{Name: "claim_status", MustBeIn: []string{"denied", "partially_denied"}}

	denied := frameWithClaim(scenario.Record{"record_id": "CLM-001", "status": "denied"})
	assert.Equal(t, OutcomeSatisfied, reg.Evaluate(pre, denied))

	paid := frameWithClaim(scenario.Record{"record_id": "CLM-001", "status": "paid"})
	assert.Equal(t, OutcomeViolated, reg.Evaluate(pre, paid))
}

func TestEvaluateNoPendingAppeal(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	pre := rulebook.Precondition{Name: "no_pending_appeal", Check: "appeal_reference_is_null"}

	clean := frameWithClaim(scenario.Record{"record_id": "CLM-001"})
	assert.Equal(t, OutcomeSatisfied, reg.Evaluate(pre, clean))

	nullRef := frameWithClaim(scenario.Record{"record_id": "CLM-001", "appeal_reference": nil})
	assert.Equal(t, OutcomeSatisfied, reg.Evaluate(pre, nullRef))

	pending := frameWithClaim(scenario.Record{"record_id": "CLM-001", "appeal_reference": "APL-2024-1"})
	assert.Equal(t, OutcomeViolated, reg.Evaluate(pre, pending))
}

func TestEvaluateUnknownCheckIsUnverifiable(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	pre := rulebook.Precondition{Name: "timely_filing", Check: "appeal_deadline_not_passed"}
	assert.Equal(t, OutcomeUnverifiable, reg.Evaluate(pre, frameWithClaim(scenario.Record{})))
}

func TestRegisterInstallsEvaluator(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("timely_filing.appeal_deadline_not_passed", func(_ rulebook.Precondition, _ scenario.Frame) Outcome {
		return OutcomeViolated
	})
	pre := rulebook.Precondition{Name: "timely_filing", Check: "appeal_deadline_not_passed"}
	assert.Equal(t, OutcomeViolated, reg.Evaluate(pre, frameWithClaim(scenario.Record{})))
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "satisfied", OutcomeSatisfied.String())
	assert.Equal(t, "violated", OutcomeViolated.String())
	assert.Equal(t, "unverifiable", OutcomeUnverifiable.String())
}
