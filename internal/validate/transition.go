package validate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/clearbill/scengen/internal/rulebook"
	"github.com/clearbill/scengen/internal/scenario"
)

// Transition is one step of a scenario: the prior frame, the action
// purportedly applied, and the observed next frame.
type Transition struct {
	Index  int
	Action string
	Prev   scenario.Frame
	Next   scenario.Frame
}

// TransitionValidator checks one transition against the rulebook:
// preconditions via the predicate registry, postconditions against the
// computed delta.
type TransitionValidator struct {
	rules *rulebook.Rulebook
	preds *Registry
	opts  Options
}

// NewTransitionValidator wires a transition validator.
func NewTransitionValidator(rules *rulebook.Rulebook, preds *Registry, opts Options) *TransitionValidator {
	return &TransitionValidator{rules: rules, preds: preds, opts: opts.withDefaults()}
}

// deltaVerifiers keys each postcondition delta kind to its verifier.
// New delta kinds are added by registration here, not by new branches
// in Validate.
type verifierFunc func(v *TransitionValidator, t Transition, post rulebook.Postcondition, delta Delta) []Finding

var deltaVerifiers = map[string]verifierFunc{
	rulebook.DeltaUpdated: (*TransitionValidator).verifyUpdated,
	rulebook.DeltaAdded:   (*TransitionValidator).verifyAdded,
	rulebook.DeltaRemoved: (*TransitionValidator).verifyRemoved,
}

// Validate evaluates the transition and returns its findings. It is
// pure: the same transition always yields the same findings.
func (v *TransitionValidator) Validate(t Transition) []Finding {
	delta := Compute(t.Prev.AccountState, t.Next.AccountState)

	var findings []Finding
	for _, m := range delta.Mutated {
		findings = append(findings, Finding{
			Kind:       KindEntityMutation,
			Severity:   SeverityHard,
			Transition: t.Index,
			Path:       fmt.Sprintf("%s[%s]", m.Table, m.ID),
			Message:    "entity record changed in place; entity tables are append-only within a transition",
		})
	}

	if t.Action == "" {
		// No action declared for this transition; only structural and
		// sequence-level checks apply.
		return findings
	}

	def, err := v.rules.Get(t.Action)
	if err != nil {
		var unknown *rulebook.UnknownActionError
		if errors.As(err, &unknown) {
			return append(findings, Finding{
				Kind:       KindUnknownAction,
				Severity:   SeverityHard,
				Transition: t.Index,
				Message:    fmt.Sprintf("action %q is not defined in the rulebook", t.Action),
			})
		}
		return append(findings, Finding{
			Kind:       KindUnknownAction,
			Severity:   SeverityHard,
			Transition: t.Index,
			Message:    err.Error(),
		})
	}

	for _, pre := range def.Preconditions {
		switch v.preds.Evaluate(pre, t.Prev) {
		case OutcomeViolated:
			findings = append(findings, Finding{
				Kind:       KindPreconditionViolation,
				Severity:   SeverityHard,
				Transition: t.Index,
				Condition:  pre.Name,
				Message:    fmt.Sprintf("action %q requires %s", t.Action, preconditionWant(pre)),
				Observed:   describePrior(pre, t.Prev),
			})
		case OutcomeUnverifiable:
			findings = append(findings, Finding{
				Kind:       KindUnverifiedCheck,
				Severity:   SeverityAdvisory,
				Transition: t.Index,
				Condition:  pre.Name,
				Message:    fmt.Sprintf("check %q has no native evaluator; deferred to oracle judgment", pre.CheckType()),
			})
		}
	}

	for _, post := range def.Postconditions {
		if post.Advisory() {
			findings = append(findings, Finding{
				Kind:       KindUnverifiedCheck,
				Severity:   SeverityAdvisory,
				Transition: t.Index,
				Condition:  post.Name,
				Message:    fmt.Sprintf("postcondition check %q has no native verifier; deferred to oracle judgment", post.Check),
			})
			continue
		}
		verify := deltaVerifiers[post.Delta]
		findings = append(findings, verify(v, t, post, delta)...)
	}

	findings = append(findings, v.extraDeltaFindings(t, def, delta)...)
	return findings
}

// verifyUpdated checks a record_update postcondition: the claim's
// changed-field set must cover the declared _changed_fields, and every
// declared field value must match its target.
func (v *TransitionValidator) verifyUpdated(t Transition, post rulebook.Postcondition, delta Delta) []Finding {
	var findings []Finding
	changed := delta.ChangedFields()

	missing := make(map[string]bool)
	for _, field := range post.ChangedFields {
		if _, ok := changed[field]; !ok {
			missing[field] = true
			findings = append(findings, Finding{
				Kind:       KindPostconditionMismatch,
				Severity:   SeverityHard,
				Transition: t.Index,
				Condition:  post.Name,
				Message:    fmt.Sprintf("declared changed field %q did not change", field),
				Expected:   fmt.Sprintf("field %q updated by action %q", field, t.Action),
			})
		}
	}

	prevClaim := t.Prev.AccountState.Claim()
	nextClaim := t.Next.AccountState.Claim()
	for _, field := range sortedExpectFields(post.Expect) {
		if missing[field] {
			// Already reported as a missing changed field.
			continue
		}
		want := post.Expect[field]
		got := nextClaim[field]
		if matchesExpected(field, want, got, prevClaim[field]) {
			continue
		}
		findings = append(findings, Finding{
			Kind:       KindPostconditionMismatch,
			Severity:   SeverityHard,
			Transition: t.Index,
			Condition:  post.Name,
			Message:    fmt.Sprintf("claim field %q does not satisfy postcondition", field),
			Expected:   describeExpected(field, want),
			Observed:   fmt.Sprintf("%v", got),
		})
	}
	return findings
}

// verifyAdded checks a new_entity postcondition: at least one newly
// appeared record of the declared table must satisfy every constraint.
// When several added postconditions target the same table, each must
// find its own satisfying record; one record may serve several only by
// satisfying all their constraint sets.
func (v *TransitionValidator) verifyAdded(t Transition, post rulebook.Postcondition, delta Delta) []Finding {
	for _, rec := range delta.Added[post.Table] {
		if addedRecordSatisfies(post, rec) {
			return nil
		}
	}
	return []Finding{{
		Kind:       KindMissingRequiredEntity,
		Severity:   SeverityHard,
		Transition: t.Index,
		Condition:  post.Name,
		Message:    fmt.Sprintf("action %q must add a %s record matching %s", t.Action, strings.TrimSuffix(post.Table, "s"), constraintSummary(post)),
		Expected:   constraintSummary(post),
	}}
}

// verifyRemoved checks the rare removal delta kind.
func (v *TransitionValidator) verifyRemoved(t Transition, post rulebook.Postcondition, delta Delta) []Finding {
	if len(delta.Removed[post.Table]) > 0 {
		return nil
	}
	return []Finding{{
		Kind:       KindPostconditionMismatch,
		Severity:   SeverityHard,
		Transition: t.Index,
		Condition:  post.Name,
		Message:    fmt.Sprintf("action %q must remove a record from %s", t.Action, post.Table),
	}}
}

func addedRecordSatisfies(post rulebook.Postcondition, rec scenario.Record) bool {
	for field, want := range post.Expect {
		if !matchesExpected(field, want, rec[field], nil) {
			return false
		}
	}
	content := strings.ToLower(rec.String("content"))
	for _, tag := range post.MustContain {
		if !strings.Contains(content, strings.ToLower(tag)) {
			return false
		}
	}
	return true
}

// sentinelPattern matches ALL_CAPS placeholder values in action
// definitions (SET_TO_EVENT_DATE, GENERATE_NEW, PAYMENT_AMOUNT, ...).
var sentinelPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]+$`)

// isSentinel reports whether the declared value is a placeholder
// meaning "any non-null value differing from the prior one" rather than
// a literal. Besides ALL_CAPS placeholders, the lowercase new_<field>
// convention (e.g. "new_status" for the status field) is preserved.
func isSentinel(field string, want any) bool {
	s, ok := want.(string)
	if !ok {
		return false
	}
	return sentinelPattern.MatchString(s) || s == "new_"+field
}

func matchesExpected(field string, want, got, prior any) bool {
	if isSentinel(field, want) {
		if got == nil {
			return false
		}
		if s, ok := got.(string); ok && s == "" {
			return false
		}
		return !valuesEqual(got, prior)
	}
	return valuesEqual(got, want)
}

func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return math.Abs(af-bf) < 1e-9
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// extraDeltaFindings reports observed deltas no postcondition declared.
// Under the open-world policy these are informational; a config flag
// promotes them to hard findings.
func (v *TransitionValidator) extraDeltaFindings(t Transition, def rulebook.ActionDefinition, delta Delta) []Finding {
	severity := SeverityAdvisory
	if v.opts.FailOnExtraDeltas {
		severity = SeverityHard
	}

	declaredFields := make(map[string]bool)
	declaredTables := make(map[string]bool)
	for _, post := range def.Postconditions {
		if post.Advisory() {
			continue
		}
		if post.Delta == rulebook.DeltaUpdated {
			for _, f := range post.ChangedFields {
				declaredFields[f] = true
			}
			for f := range post.Expect {
				declaredFields[f] = true
			}
		}
		if post.Delta == rulebook.DeltaAdded {
			declaredTables[post.Table] = true
		}
	}

	var findings []Finding
	for _, fc := range delta.ClaimChanges {
		if declaredFields[fc.Field] {
			continue
		}
		findings = append(findings, Finding{
			Kind:       KindExtraDelta,
			Severity:   severity,
			Transition: t.Index,
			Path:       "claims[0]." + fc.Field,
			Message:    fmt.Sprintf("claim field %q changed but no postcondition of %q declares it", fc.Field, t.Action),
		})
	}
	for _, table := range scenario.TableNames() {
		if declaredTables[table] || table == "claims" {
			continue
		}
		for _, rec := range delta.Added[table] {
			findings = append(findings, Finding{
				Kind:       KindExtraDelta,
				Severity:   severity,
				Transition: t.Index,
				Path:       fmt.Sprintf("%s[%s]", table, rec.ID()),
				Message:    fmt.Sprintf("record appeared in %s but no postcondition of %q declares it", table, t.Action),
			})
		}
	}
	return findings
}

func preconditionWant(pre rulebook.Precondition) string {
	if len(pre.MustBeIn) > 0 {
		return fmt.Sprintf("%s in [%s]", pre.Name, strings.Join(pre.MustBeIn, ", "))
	}
	if pre.Description != "" {
		return pre.Description
	}
	return pre.CheckType()
}

func describePrior(pre rulebook.Precondition, prior scenario.Frame) string {
	claim := prior.AccountState.Claim()
	switch pre.CheckType() {
	case "claim_status.must_be_in":
		return fmt.Sprintf("status=%q", claim.String("status"))
	case "no_pending_appeal.appeal_reference_is_null":
		return fmt.Sprintf("appeal_reference=%q", claim.String("appeal_reference"))
	default:
		return ""
	}
}

func describeExpected(field string, want any) string {
	if isSentinel(field, want) {
		return fmt.Sprintf("any non-null value differing from the prior %s", field)
	}
	return fmt.Sprintf("%v", want)
}

func constraintSummary(post rulebook.Postcondition) string {
	parts := make([]string, 0, len(post.Expect)+1)
	for _, field := range sortedExpectFields(post.Expect) {
		parts = append(parts, fmt.Sprintf("%s=%v", field, post.Expect[field]))
	}
	if len(post.MustContain) > 0 {
		parts = append(parts, "content containing "+strings.Join(post.MustContain, ", "))
	}
	if len(parts) == 0 {
		return "any new record"
	}
	return strings.Join(parts, "; ")
}

func sortedExpectFields(m map[string]any) []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
