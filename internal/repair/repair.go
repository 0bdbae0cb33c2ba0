// Package repair drives the bounded generate-validate-repair loop: a
// failing scenario is sent back to the oracle together with the hard
// finding diagnostics until it validates or the retry budget runs out.
package repair

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clearbill/scengen/internal/oracle"
	"github.com/clearbill/scengen/internal/prompt"
	"github.com/clearbill/scengen/internal/scenario"
	"github.com/clearbill/scengen/internal/validate"
)

// DefaultMaxRetries bounds repair attempts per scenario.
const DefaultMaxRetries = 3

// State names the loop's position for run bookkeeping.
type State string

const (
	StateGenerated  State = "generated"
	StateValidating State = "validating"
	StateRepairing  State = "repairing"
	StatePassed     State = "passed"
	StateExhausted  State = "exhausted"
)

// Attempt is one validation pass over oracle output. Attempt 0 is the
// initial generation; later attempts are repairs.
type Attempt struct {
	Number   int
	Raw      string
	Scenario *scenario.Scenario
	Report   validate.Report
}

// Pass reports whether the attempt validated clean.
func (a Attempt) Pass() bool { return a.Report.Pass() }

// Result is the outcome of one loop run. Scenario and Report always
// describe the best attempt: the passing one, or on exhaustion the one
// with the fewest hard findings.
type Result struct {
	State    State
	Scenario *scenario.Scenario
	Report   validate.Report
	Raw      string
	Attempts []Attempt
}

// Repaired reports whether the result passed only after repair.
func (r Result) Repaired() bool {
	return r.State == StatePassed && len(r.Attempts) > 1
}

// Loop is the repair orchestrator.
type Loop struct {
	oracle     oracle.Oracle
	validator  *validate.Validator
	prompts    *prompt.Builder
	maxRetries int
	log        zerolog.Logger
}

// NewLoop wires a repair loop. maxRetries < 0 falls back to the default
// budget; 0 means validate the generation once and never repair.
func NewLoop(o oracle.Oracle, v *validate.Validator, p *prompt.Builder, maxRetries int, log zerolog.Logger) *Loop {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Loop{oracle: o, validator: v, prompts: p, maxRetries: maxRetries, log: log}
}

// Run generates one scenario from the seed and repairs it until it
// validates or the budget is spent. An oracle error aborts the loop;
// a validation failure never does.
func (l *Loop) Run(ctx context.Context, seed prompt.Seed) (Result, error) {
	system := l.prompts.System()

	raw, err := l.oracle.Complete(ctx, system, l.prompts.Generation(seed))
	if err != nil {
		return Result{}, fmt.Errorf("generate scenario: %w", err)
	}

	result := Result{State: StateValidating}
	attempt := l.validate(0, raw)
	result.Attempts = append(result.Attempts, attempt)

	for !attempt.Pass() && len(result.Attempts) <= l.maxRetries {
		result.State = StateRepairing
		l.log.Info().
			Int("attempt", attempt.Number).
			Int("hard_findings", attempt.Report.HardCount()).
			Msg("scenario failed validation, attempting repair")

		raw, err = l.oracle.Complete(ctx, system, l.prompts.Repair(repairBody(attempt), attempt.Report.Diagnostics()))
		if err != nil {
			return Result{}, fmt.Errorf("repair attempt %d: %w", len(result.Attempts), err)
		}
		attempt = l.validate(len(result.Attempts), raw)
		result.Attempts = append(result.Attempts, attempt)
	}

	best := bestAttempt(result.Attempts)
	result.Scenario = best.Scenario
	result.Report = best.Report
	result.Raw = best.Raw
	if attempt.Pass() {
		result.State = StatePassed
	} else {
		result.State = StateExhausted
		l.log.Warn().
			Int("attempts", len(result.Attempts)).
			Int("best_hard_findings", best.Report.HardCount()).
			Msg("repair budget exhausted, keeping best attempt")
	}
	return result, nil
}

func (l *Loop) validate(number int, raw string) Attempt {
	s, report := l.validator.ValidateRaw(raw)
	return Attempt{Number: number, Raw: raw, Scenario: s, Report: report}
}

// repairBody picks what to echo back to the oracle: the parsed
// scenario's raw text when parsing succeeded, otherwise the response
// verbatim so the oracle can see its own formatting mistake.
func repairBody(a Attempt) string {
	if a.Scenario != nil {
		return a.Scenario.Raw
	}
	return a.Raw
}

// bestAttempt picks the passing attempt, or the one with the fewest
// hard findings. Earlier attempts win ties: a parse failure counts
// worse than any parsed scenario.
func bestAttempt(attempts []Attempt) Attempt {
	best := attempts[0]
	for _, a := range attempts[1:] {
		if attemptScore(a) < attemptScore(best) {
			best = a
		}
	}
	return best
}

func attemptScore(a Attempt) int {
	if a.Scenario == nil {
		return 1 << 20
	}
	return a.Report.HardCount()
}
