package validate

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/clearbill/scengen/internal/catalog"
	"github.com/clearbill/scengen/internal/rulebook"
	"github.com/clearbill/scengen/internal/scenario"
)

// Options tune validation policy. The zero value gives the default
// policy: lenient resolution, open-world extra deltas, paid/closed
// terminal statuses.
type Options struct {
	// Strict promotes incomplete-resolution findings to hard.
	Strict bool

	// FailOnExtraDeltas promotes undeclared-delta findings to hard,
	// switching the postcondition model from open-world to closed-world.
	FailOnExtraDeltas bool

	// TerminalStatuses lists the claim statuses that count as resolved.
	TerminalStatuses []string
}

func (o Options) withDefaults() Options {
	if len(o.TerminalStatuses) == 0 {
		o.TerminalStatuses = []string{"paid", "closed"}
	}
	return o
}

// Validator runs the full validation pass over a scenario: every
// transition against the rulebook, then the sequence-level consistency
// checks. Validation is deterministic and makes no oracle calls.
type Validator struct {
	transitions *TransitionValidator
	consistency *ConsistencyChecker
	log         zerolog.Logger
}

// New wires a validator from the rulebook, catalog and predicate
// registry.
func New(rules *rulebook.Rulebook, cat *catalog.Catalog, preds *Registry, opts Options, log zerolog.Logger) *Validator {
	opts = opts.withDefaults()
	return &Validator{
		transitions: NewTransitionValidator(rules, preds, opts),
		consistency: NewConsistencyChecker(cat, opts),
		log:         log,
	}
}

// Validate checks a parsed scenario and returns its report. The same
// scenario always yields the same report.
func (v *Validator) Validate(s *scenario.Scenario) Report {
	var report Report

	for i := 1; i < len(s.Timeline); i++ {
		t := Transition{
			Index:  i - 1,
			Action: s.Timeline[i].Event.ActionTaken,
			Prev:   s.Timeline[i-1],
			Next:   s.Timeline[i],
		}
		report.Findings = append(report.Findings, v.transitions.Validate(t)...)
	}
	report.Findings = append(report.Findings, v.consistency.Check(s)...)

	v.log.Debug().
		Str("scenario", s.Metadata.ScenarioID).
		Int("transitions", s.Transitions()).
		Int("hard", report.HardCount()).
		Int("findings", len(report.Findings)).
		Msg("scenario validated")
	return report
}

// ValidateRaw parses oracle output and validates it. A parse or schema
// failure yields a report with a single parse_failure finding and a nil
// scenario; the diagnostic carries the parser's reason so the repair
// prompt can relay it.
func (v *Validator) ValidateRaw(raw string) (*scenario.Scenario, Report) {
	s, err := scenario.Parse(raw)
	if err != nil {
		var perr *scenario.ParseError
		msg := err.Error()
		if errors.As(err, &perr) {
			msg = perr.Reason
		}
		return nil, Report{Findings: []Finding{{
			Kind:       KindParseFailure,
			Severity:   SeverityHard,
			Transition: SequenceScope,
			Message:    msg,
		}}}
	}
	return s, v.Validate(s)
}
