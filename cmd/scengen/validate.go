package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	var strict bool
	var failOnExtraDeltas bool
	cmd := &cobra.Command{
		Use:   "validate <scenario.json>...",
		Short: "Validate scenario files offline, without any oracle calls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(workDir)
			if err != nil {
				return err
			}
			if strict {
				cfg.Validation.Strict = true
			}
			if failOnExtraDeltas {
				cfg.Validation.FailOnExtraDeltas = true
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			failures := 0
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read scenario: %w", err)
				}
				s, report := eng.validator.ValidateRaw(string(raw))
				printValidation(path, s, report)
				if !report.Pass() {
					failures++
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d scenarios failed validation", failures, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat incomplete resolution as a hard failure")
	cmd.Flags().BoolVar(&failOnExtraDeltas, "fail-on-extra-deltas", false, "treat undeclared state changes as hard failures")
	return cmd
}
