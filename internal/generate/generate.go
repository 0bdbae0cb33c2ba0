// Package generate seeds and drives batch scenario generation: it
// resolves seed parameters against the catalog, randomizes payer and
// complexity for diversity, and runs each seed through the repair loop.
package generate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearbill/scengen/internal/catalog"
	"github.com/clearbill/scengen/internal/prompt"
	"github.com/clearbill/scengen/internal/repair"
)

// ConfigurationError reports a seed parameter that does not resolve
// against the catalog. It is fatal before any oracle call.
type ConfigurationError struct {
	Field string
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("generate: unknown %s %q", e.Field, e.Value)
}

var complexities = []string{"simple", "moderate", "complex"}

// Options parameterize one generation batch.
type Options struct {
	// DenialCodes to cycle through; empty means sample from the full
	// catalog.
	DenialCodes []string

	// Count of scenarios to generate.
	Count int

	// Complexity pins all scenarios to one level; empty randomizes.
	Complexity string

	// PayerCode pins all scenarios to one payer; empty randomizes.
	PayerCode string

	ServiceType  string
	Instructions string
}

// Outcome pairs one seed with its loop result.
type Outcome struct {
	Seed     prompt.Seed
	Result   repair.Result
	Duration time.Duration
}

// Orchestrator drives scenario generation batches.
type Orchestrator struct {
	catalog *catalog.Catalog
	loop    *repair.Loop
	rng     *rand.Rand
	log     zerolog.Logger
}

// New wires an orchestrator. The rng is injected so batches are
// reproducible under a fixed seed.
func New(cat *catalog.Catalog, loop *repair.Loop, rng *rand.Rand, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{catalog: cat, loop: loop, rng: rng, log: log}
}

// BuildSeed resolves seed parameters against the catalog. Unknown
// denial codes and payer codes fail before any oracle call.
func (o *Orchestrator) BuildSeed(denialCode, payerCode, complexity, serviceType, instructions string) (prompt.Seed, error) {
	denial, ok := o.catalog.Denial(denialCode)
	if !ok {
		return prompt.Seed{}, &ConfigurationError{Field: "denial code", Value: denialCode}
	}

	var payer catalog.Payer
	if payerCode != "" {
		payer, ok = o.catalog.Payer(payerCode)
		if !ok {
			return prompt.Seed{}, &ConfigurationError{Field: "payer code", Value: payerCode}
		}
	} else {
		payers := o.catalog.Payers()
		payer = payers[o.rng.Intn(len(payers))]
	}

	if complexity == "" {
		complexity = complexities[o.rng.Intn(len(complexities))]
	}
	if serviceType == "" {
		serviceType = "outpatient"
	}

	return prompt.Seed{
		Denial:       denial,
		Payer:        payer,
		Complexity:   complexity,
		ServiceType:  serviceType,
		Instructions: instructions,
	}, nil
}

// Generate runs a batch of scenario generations. Seed resolution
// happens for the entire batch before the first oracle call, so a
// misconfigured batch never burns model quota. A context cancellation
// returns the outcomes finished so far along with the error.
func (o *Orchestrator) Generate(ctx context.Context, opts Options) ([]Outcome, error) {
	if opts.Count <= 0 {
		opts.Count = 1
	}
	codes := opts.DenialCodes
	if len(codes) == 0 {
		codes = o.catalog.DenialCodes()
	}

	seeds := make([]prompt.Seed, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		code := codes[i%len(codes)]
		if len(opts.DenialCodes) == 0 {
			code = codes[o.rng.Intn(len(codes))]
		}
		seed, err := o.BuildSeed(code, opts.PayerCode, opts.Complexity, opts.ServiceType, opts.Instructions)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}

	outcomes := make([]Outcome, 0, len(seeds))
	for i, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		o.log.Info().
			Int("scenario", i+1).
			Int("of", len(seeds)).
			Str("denial_code", seed.Denial.Code).
			Str("payer", seed.Payer.Code).
			Str("complexity", seed.Complexity).
			Msg("generating scenario")

		start := time.Now()
		result, err := o.loop.Run(ctx, seed)
		if err != nil {
			return outcomes, fmt.Errorf("scenario %d (%s): %w", i+1, seed.Denial.Code, err)
		}
		outcomes = append(outcomes, Outcome{Seed: seed, Result: result, Duration: time.Since(start)})
	}
	return outcomes, nil
}
