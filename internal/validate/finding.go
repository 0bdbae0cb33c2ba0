// Package validate implements the scenario validation engine: predicate
// evaluation against prior frames, structural frame diffing, transition
// postcondition verification and whole-sequence consistency checks,
// aggregated into a single report.
package validate

import (
	"fmt"
	"strings"
)

// Kind categorizes a validation finding.
type Kind string

// Hard finding kinds: any one of these fails the scenario and drives a
// repair attempt.
const (
	KindPreconditionViolation  Kind = "precondition_violation"
	KindPostconditionMismatch  Kind = "postcondition_mismatch"
	KindMissingRequiredEntity  Kind = "missing_required_entity"
	KindTemporalInconsistency  Kind = "temporal_inconsistency"
	KindFinancialInconsistency Kind = "financial_inconsistency"
	KindParseFailure           Kind = "parse_failure"
	KindUnknownAction          Kind = "unknown_action"
	KindSchemaViolation        Kind = "schema_violation"
	KindReferentialIntegrity   Kind = "referential_integrity"
	KindEntityMutation         Kind = "entity_mutation"
)

// Advisory finding kinds: reported for transparency, never block success.
const (
	KindUnverifiedCheck      Kind = "unverified_check"
	KindExtraDelta           Kind = "extra_delta"
	KindIncompleteResolution Kind = "incomplete_resolution"
	KindDeltaAnnotation      Kind = "delta_annotation"
	KindContentQuality       Kind = "content_quality"
)

// Severity splits findings into those that fail a scenario and those
// that merely annotate it.
type Severity string

const (
	SeverityHard     Severity = "hard"
	SeverityAdvisory Severity = "advisory"
)

// SequenceScope marks findings that apply to the whole frame sequence
// rather than one transition.
const SequenceScope = -1

// Finding is one validation result: what failed (or is worth noting),
// where, and a diagnostic suitable for oracle feedback.
type Finding struct {
	Kind       Kind     `json:"kind"`
	Severity   Severity `json:"severity"`
	Transition int      `json:"transition"`
	Condition  string   `json:"condition,omitempty"`
	Path       string   `json:"path,omitempty"`
	Message    string   `json:"message"`
	Expected   string   `json:"expected,omitempty"`
	Observed   string   `json:"observed,omitempty"`
}

// Hard reports whether the finding fails the scenario.
func (f Finding) Hard() bool { return f.Severity == SeverityHard }

// Diagnostic renders the finding for oracle feedback.
func (f Finding) Diagnostic() string {
	var b strings.Builder
	if f.Transition == SequenceScope {
		fmt.Fprintf(&b, "[%s]", f.Kind)
	} else {
		fmt.Fprintf(&b, "[%s] transition %d", f.Kind, f.Transition)
	}
	if f.Condition != "" {
		fmt.Fprintf(&b, " (%s)", f.Condition)
	}
	if f.Path != "" {
		fmt.Fprintf(&b, " at %s", f.Path)
	}
	fmt.Fprintf(&b, ": %s", f.Message)
	if f.Expected != "" {
		fmt.Fprintf(&b, " (expected %s", f.Expected)
		if f.Observed != "" {
			fmt.Fprintf(&b, ", observed %s", f.Observed)
		}
		b.WriteString(")")
	} else if f.Observed != "" {
		fmt.Fprintf(&b, " (observed %s)", f.Observed)
	}
	return b.String()
}

// Report aggregates the findings of one validation pass.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Pass reports whether the scenario validated with zero hard findings.
func (r Report) Pass() bool { return r.HardCount() == 0 }

// HardCount counts blocking findings.
func (r Report) HardCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Hard() {
			n++
		}
	}
	return n
}

// Hard returns the blocking findings in report order.
func (r Report) Hard() []Finding {
	out := make([]Finding, 0, len(r.Findings))
	for _, f := range r.Findings {
		if f.Hard() {
			out = append(out, f)
		}
	}
	return out
}

// Summary renders a one-line pass/fail digest.
func (r Report) Summary() string {
	status := "VALID"
	if !r.Pass() {
		status = "INVALID"
	}
	return fmt.Sprintf("%s - %d hard findings, %d advisories", status, r.HardCount(), len(r.Findings)-r.HardCount())
}

// Diagnostics renders every hard finding, one per line, for the repair
// prompt.
func (r Report) Diagnostics() string {
	lines := make([]string, 0, r.HardCount())
	for _, f := range r.Hard() {
		lines = append(lines, "- "+f.Diagnostic())
	}
	return strings.Join(lines, "\n")
}
