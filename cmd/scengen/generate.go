package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearbill/scengen/internal/db"
	"github.com/clearbill/scengen/internal/generate"
	"github.com/clearbill/scengen/internal/logging"
	"github.com/clearbill/scengen/internal/oracle"
	"github.com/clearbill/scengen/internal/prompt"
	"github.com/clearbill/scengen/internal/repair"
)

func generateCmd() *cobra.Command {
	var (
		count       int
		denialCodes []string
		complexity  string
		payerCode   string
		serviceType string
		outDir      string
		maxRetries  int
		model       string
		rngSeed     int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate validated AR billing scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(workDir)
			if err != nil {
				return err
			}
			if maxRetries >= 0 {
				cfg.Generation.MaxRetries = &maxRetries
			}
			if model != "" {
				cfg.Oracle.Model = model
			}
			if serviceType != "" {
				cfg.Generation.ServiceType = serviceType
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := oracle.NewClient(ctx, oracle.Config{
				APIKey:      os.Getenv(cfg.Oracle.APIKeyEnv),
				Model:       cfg.Oracle.Model,
				Temperature: cfg.Oracle.Temperature,
				BaseURL:     cfg.Oracle.BaseURL,
				Timeout:     time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second,
			}, logging.Component("oracle"))
			if err != nil {
				return err
			}

			builder := prompt.NewBuilder(eng.catalog, eng.rules, prompt.Options{
				IncludeSchemas: *cfg.Generation.IncludeSchemas,
				IncludeFewShot: *cfg.Generation.IncludeFewShot,
			})
			loop := repair.NewLoop(client, eng.validator, builder, *cfg.Generation.MaxRetries, logging.Component("repair"))

			if rngSeed == 0 {
				rngSeed = time.Now().UnixNano()
			}
			orch := generate.New(eng.catalog, loop, rand.New(rand.NewSource(rngSeed)), logging.Component("generate"))

			store, _, closeFn, err := openStore(workDir, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			runID, err := newRunID()
			if err != nil {
				return err
			}
			if err := store.CreateRun(ctx, runID, count, cfg.Oracle.Model); err != nil {
				return err
			}

			outcomes, genErr := orch.Generate(ctx, generate.Options{
				DenialCodes: denialCodes,
				Count:       count,
				Complexity:  complexity,
				PayerCode:   payerCode,
				ServiceType: cfg.Generation.ServiceType,
			})

			passed, exhausted := 0, 0
			for i, outcome := range outcomes {
				if outcome.Result.State == repair.StatePassed {
					passed++
				} else {
					exhausted++
				}
				if err := persistOutcome(ctx, store, runID, i, outcome); err != nil {
					return err
				}
				if outDir != "" && outcome.Result.Scenario != nil {
					if err := writeScenario(outDir, runID, i, outcome); err != nil {
						return err
					}
				}
			}

			status := "completed"
			if genErr != nil {
				status = "failed"
			}
			if err := store.FinishRun(ctx, runID, status, passed, exhausted); err != nil {
				return err
			}

			printRunSummary(runID, outcomes)
			return genErr
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of scenarios to generate")
	cmd.Flags().StringSliceVar(&denialCodes, "denial-code", nil, "denial codes to cycle through (default: sample the catalog)")
	cmd.Flags().StringVar(&complexity, "complexity", "", "pin complexity: simple, moderate or complex")
	cmd.Flags().StringVar(&payerCode, "payer", "", "pin the payer code")
	cmd.Flags().StringVar(&serviceType, "service-type", "", "outpatient or inpatient")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write scenario JSON files into")
	cmd.Flags().IntVar(&maxRetries, "max-retries", -1, "repair attempts per scenario (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "oracle model (overrides config)")
	cmd.Flags().Int64Var(&rngSeed, "seed", 0, "rng seed for reproducible payer/complexity sampling")
	return cmd
}

func persistOutcome(ctx context.Context, store *db.Store, runID string, seq int, outcome generate.Outcome) error {
	rec := db.ScenarioRecord{
		RunID:        runID,
		Seq:          seq,
		DenialCode:   outcome.Seed.Denial.Code,
		PayerCode:    outcome.Seed.Payer.Code,
		Complexity:   outcome.Seed.Complexity,
		State:        string(outcome.Result.State),
		HardFindings: outcome.Result.Report.HardCount(),
		Advisories:   len(outcome.Result.Report.Findings) - outcome.Result.Report.HardCount(),
		Attempts:     len(outcome.Result.Attempts),
		DurationMS:   outcome.Duration.Milliseconds(),
	}
	if s := outcome.Result.Scenario; s != nil {
		rec.ScenarioID = s.Metadata.ScenarioID
		rec.ScenarioJSON = s.Raw
	}

	attempts := make([]db.AttemptRecord, 0, len(outcome.Result.Attempts))
	for _, a := range outcome.Result.Attempts {
		findings, err := json.Marshal(a.Report.Findings)
		if err != nil {
			return fmt.Errorf("marshal findings: %w", err)
		}
		attempts = append(attempts, db.AttemptRecord{
			Attempt:      a.Number,
			HardFindings: a.Report.HardCount(),
			Advisories:   len(a.Report.Findings) - a.Report.HardCount(),
			FindingsJSON: string(findings),
		})
	}
	return store.CommitScenario(ctx, rec, attempts)
}

func writeScenario(outDir, runID string, seq int, outcome generate.Outcome) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%03d-%s.json", runID, seq+1, outcome.Seed.Denial.Code)
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, []byte(outcome.Result.Scenario.Raw), 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	return nil
}
