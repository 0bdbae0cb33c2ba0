package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clearbill/scengen/internal/catalog"
	"github.com/clearbill/scengen/internal/rulebook"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the reference data the generator works from",
	}
	cmd.AddCommand(catalogDenialsCmd())
	cmd.AddCommand(catalogPayersCmd())
	cmd.AddCommand(catalogActionsCmd())
	return cmd
}

func catalogDenialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "denials",
		Short: "List the denial code catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			for _, code := range cat.DenialCodes() {
				d, _ := cat.Denial(code)
				fmt.Printf("%-8s %-28s %s\n", d.Code, d.Category, d.Description)
			}
			return nil
		},
	}
}

func catalogPayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payers",
		Short: "List the payer catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			for _, p := range cat.Payers() {
				fmt.Printf("%-10s %s\n", p.Code, p.Name)
			}
			return nil
		},
	}
}

func catalogActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "Show the action rulebook as the oracle sees it",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := rulebook.Default()
			if err != nil {
				return err
			}
			fmt.Print(rules.Text())
			return nil
		},
	}
}
