package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect past generation runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(workDir)
			if err != nil {
				return err
			}
			store, _, closeFn, err := openStore(workDir, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%-22s %-10s requested=%d passed=%d exhausted=%d model=%s\n",
					r.RunID, r.Status, r.Requested, r.Passed, r.Exhausted, r.Model)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the scenarios of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(workDir)
			if err != nil {
				return err
			}
			store, _, closeFn, err := openStore(workDir, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			scenarios, err := store.ListScenarios(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(scenarios) == 0 {
				fmt.Println("no scenarios recorded for run", args[0])
				return nil
			}
			for _, s := range scenarios {
				fmt.Printf("#%-3d %-10s %-8s payer=%-8s %-9s attempts=%d hard=%d advisories=%d %dms\n",
					s.Seq+1, s.State, s.DenialCode, s.PayerCode, s.Complexity,
					s.Attempts, s.HardFindings, s.Advisories, s.DurationMS)
			}
			return nil
		},
	}
}
