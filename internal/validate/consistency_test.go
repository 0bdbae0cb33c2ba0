package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbill/scengen/internal/catalog"
	"github.com/clearbill/scengen/internal/scenario"
)

func newChecker(t *testing.T, opts Options) *ConsistencyChecker {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return NewConsistencyChecker(cat, opts)
}

func fullClaim(status string, balance float64) scenario.Record {
	return scenario.Record{
		"record_id":       "CLM-001",
		"claim_number":    "CLM-2024-445521",
		"service_date":    "2024-08-15",
		"procedure_codes": []any{"99214"},
		"diagnosis_codes": []any{"I10"},
		"billed_amount":   425.0,
		"balance":         balance,
		"status":          status,
	}
}

func frameAt(ts string, claim scenario.Record, tables map[string][]scenario.Record) scenario.Frame {
	return scenario.Frame{Timestamp: ts, FrameID: "F", EventType: "test", AccountState: stateWith(claim, tables)}
}

func kinds(findings []Finding) []Kind {
	out := make([]Kind, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Kind)
	}
	return out
}

func TestTemporalOrderingViolation(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-02T08:00:00Z", fullClaim("paid", 0), nil),
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 0), nil),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindTemporalInconsistency)
}

func TestTemporalAllowsEqualTimestamps(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 0), nil),
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 0), nil),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.NotContains(t, kinds(findings), KindTemporalInconsistency)
}

func TestUnparseableTimestampIsHard(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("yesterday morning", fullClaim("paid", 0), nil),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindTemporalInconsistency)
}

func TestClaimDateBeforeServiceDate(t *testing.T) {
	t.Parallel()

	claim := fullClaim("denied", 425.0)
	claim["submission_date"] = "2024-08-18"
	claim["denial_date"] = "2024-08-01"

	s := &scenario.Scenario{
		Account:  scenario.Account{AccountNumber: "ACC-1", Facility: "Mercy General", ServiceDate: "2024-08-15"},
		Timeline: []scenario.Frame{frameAt("2024-09-01T08:00:00Z", claim, nil)},
	}
	var dateFindings []Finding
	for _, f := range newChecker(t, Options{}).Check(s) {
		if f.Kind == KindTemporalInconsistency {
			dateFindings = append(dateFindings, f)
		}
	}
	require.Len(t, dateFindings, 1)
	assert.Equal(t, SeverityHard, dateFindings[0].Severity)
	assert.Contains(t, dateFindings[0].Message, "denial_date")
	assert.Equal(t, "2024-08-01", dateFindings[0].Observed)
}

func TestClaimDateBeforeServiceDateReportsOnce(t *testing.T) {
	t.Parallel()

	claim := fullClaim("denied", 425.0)
	claim["appeal_date"] = "2024-07-30"

	s := &scenario.Scenario{
		Account: scenario.Account{AccountNumber: "ACC-1", Facility: "Mercy General", ServiceDate: "2024-08-15"},
		Timeline: []scenario.Frame{
			frameAt("2024-09-01T08:00:00Z", claim, nil),
			frameAt("2024-09-02T08:00:00Z", claim, nil),
		},
	}
	count := 0
	for _, f := range newChecker(t, Options{}).Check(s) {
		if f.Kind == KindTemporalInconsistency {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestClaimDatesOnOrAfterServiceDatePass(t *testing.T) {
	t.Parallel()

	claim := fullClaim("denied", 425.0)
	claim["submission_date"] = "2024-08-15"
	claim["denial_date"] = "2024-08-28"

	s := &scenario.Scenario{
		Account:  scenario.Account{AccountNumber: "ACC-1", Facility: "Mercy General", ServiceDate: "2024-08-15"},
		Timeline: []scenario.Frame{frameAt("2024-09-01T08:00:00Z", claim, nil)},
	}
	findings := newChecker(t, Options{}).Check(s)
	assert.NotContains(t, kinds(findings), KindTemporalInconsistency)
}

func TestFinancialLedgerMismatch(t *testing.T) {
	t.Parallel()

	txns := map[string][]scenario.Record{
		"transactions": {
			{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0},
			{"record_id": "TXN-002", "transaction_date": "2024-09-01", "type": "payment", "amount": 340.0},
		},
	}
	// Ledger says 85.00, claim says 85.01.
	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 85.01), txns),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindFinancialInconsistency)
}

func TestFinancialToleratesRounding(t *testing.T) {
	t.Parallel()

	txns := map[string][]scenario.Record{
		"transactions": {
			{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0},
			{"record_id": "TXN-002", "transaction_date": "2024-09-01", "type": "payment", "amount": 340.0},
		},
	}
	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 85.001), txns),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.NotContains(t, kinds(findings), KindFinancialInconsistency)
}

func TestFinancialSignConventionIgnoresEmittedSign(t *testing.T) {
	t.Parallel()

	// One oracle emits payments negative, another positive; both must
	// reduce the balance.
	for _, amount := range []float64{340.0, -340.0} {
		txns := map[string][]scenario.Record{
			"transactions": {
				{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0},
				{"record_id": "TXN-002", "transaction_date": "2024-09-01", "type": "payment", "amount": amount},
			},
		}
		s := &scenario.Scenario{Timeline: []scenario.Frame{
			frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 85.0), txns),
		}}
		findings := newChecker(t, Options{}).Check(s)
		assert.NotContains(t, kinds(findings), KindFinancialInconsistency)
	}
}

func TestResolutionBalanceMismatch(t *testing.T) {
	t.Parallel()

	txns := map[string][]scenario.Record{
		"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
	}
	s := &scenario.Scenario{
		Timeline:   []scenario.Frame{frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 425.0), txns)},
		Resolution: &scenario.Resolution{FinalStatus: "paid", FinalBalance: 0},
	}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindFinancialInconsistency)
}

func TestIncompleteResolutionAdvisoryByDefault(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("appeal_submitted", 425.0), map[string][]scenario.Record{
			"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
		}),
	}}

	findings := newChecker(t, Options{}).Check(s)
	for _, f := range findings {
		if f.Kind == KindIncompleteResolution {
			assert.Equal(t, SeverityAdvisory, f.Severity)
			return
		}
	}
	t.Fatal("expected an incomplete_resolution finding")
}

func TestIncompleteResolutionHardInStrictMode(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("appeal_submitted", 425.0), map[string][]scenario.Record{
			"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
		}),
	}}

	findings := newChecker(t, Options{Strict: true}).Check(s)
	for _, f := range findings {
		if f.Kind == KindIncompleteResolution {
			assert.Equal(t, SeverityHard, f.Severity)
			return
		}
	}
	t.Fatal("expected an incomplete_resolution finding")
}

func TestCustomTerminalStatuses(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("transferred_to_patient", 425.0), map[string][]scenario.Record{
			"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
		}),
	}}

	findings := newChecker(t, Options{TerminalStatuses: []string{"paid", "closed", "transferred_to_patient"}}).Check(s)
	assert.NotContains(t, kinds(findings), KindIncompleteResolution)
}

func TestSchemaViolationMissingRequiredField(t *testing.T) {
	t.Parallel()

	claim := fullClaim("paid", 0)
	delete(claim, "balance")
	s := &scenario.Scenario{Timeline: []scenario.Frame{frameAt("2024-09-01T08:00:00Z", claim, nil)}}

	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindSchemaViolation)
}

func TestSchemaViolationEnumValue(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("in_review", 425.0), map[string][]scenario.Record{
			"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
		}),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindSchemaViolation)
}

func TestSchemaViolationDeduplicatedAcrossFrames(t *testing.T) {
	t.Parallel()

	claim := fullClaim("paid", 0)
	delete(claim, "balance")
	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", claim, nil),
		frameAt("2024-09-02T08:00:00Z", claim, nil),
	}}

	count := 0
	for _, f := range newChecker(t, Options{}).Check(s) {
		if f.Kind == KindSchemaViolation {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestReferentialIntegrityBrokenRemitReference(t *testing.T) {
	t.Parallel()

	tables := map[string][]scenario.Record{
		"remits": {{
			"record_id": "RMT-001", "remit_date": "2024-08-28", "claim_reference": "CLM-2024-999999",
			"payer": "Aetna", "payment_amount": 0.0, "adjustment_amount": 425.0,
			"adjustment_reason_codes": []any{"CO-16"},
		}},
		"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
	}
	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 425.0), tables),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindReferentialIntegrity)
}

func TestDeltaAnnotationAuditFlagsMissingAnnotation(t *testing.T) {
	t.Parallel()

	base := map[string][]scenario.Record{
		"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
	}
	grown := map[string][]scenario.Record{
		"transactions": {
			{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0},
			{"record_id": "TXN-002", "transaction_date": "2024-09-01", "type": "payment", "amount": 425.0},
		},
	}
	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("denied", 425.0), base),
		frameAt("2024-09-02T08:00:00Z", fullClaim("paid", 0.0), grown),
	}}

	var found *Finding
	for _, f := range newChecker(t, Options{}).Check(s) {
		if f.Kind == KindDeltaAnnotation {
			found = &f
			break
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, SeverityAdvisory, found.Severity)
}

func TestContentQualityFlagsThinNotes(t *testing.T) {
	t.Parallel()

	tables := map[string][]scenario.Record{
		"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
		"notes": {{
			"record_id": "NOTE-001", "note_date": "2024-09-01T08:00:00Z", "author": "OPR-1",
			"author_type": "operator", "note_type": "action", "content": "done", "_delta": "added",
		}},
	}
	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 425.0), tables),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindContentQuality)
}

func TestContentQualityFlagsDuplicateNotes(t *testing.T) {
	t.Parallel()

	content := "Reviewed account and submitted appeal with documentation."
	tables := map[string][]scenario.Record{
		"transactions": {{"record_id": "TXN-001", "transaction_date": "2024-08-15", "type": "charge", "amount": 425.0}},
		"notes": {
			{"record_id": "NOTE-001", "note_date": "2024-09-01T08:00:00Z", "author": "OPR-1",
				"author_type": "operator", "note_type": "action", "content": content, "_delta": "added"},
			{"record_id": "NOTE-002", "note_date": "2024-09-01T09:00:00Z", "author": "OPR-1",
				"author_type": "operator", "note_type": "action", "content": content, "_delta": "added"},
		},
	}
	s := &scenario.Scenario{Timeline: []scenario.Frame{
		frameAt("2024-09-01T08:00:00Z", fullClaim("paid", 425.0), tables),
	}}
	findings := newChecker(t, Options{}).Check(s)
	assert.Contains(t, kinds(findings), KindContentQuality)
}
