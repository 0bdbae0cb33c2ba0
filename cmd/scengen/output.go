package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/clearbill/scengen/internal/generate"
	"github.com/clearbill/scengen/internal/repair"
	"github.com/clearbill/scengen/internal/scenario"
	"github.com/clearbill/scengen/internal/validate"
)

var (
	passStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	advisoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
)

func printRunSummary(runID string, outcomes []generate.Outcome) {
	fmt.Println(headerStyle.Render("run " + runID))
	for i, outcome := range outcomes {
		state := passStyle.Render("PASSED")
		switch outcome.Result.State {
		case repair.StateExhausted:
			state = failStyle.Render("EXHAUSTED")
		case repair.StatePassed:
			if outcome.Result.Repaired() {
				state = passStyle.Render("REPAIRED")
			}
		}
		fmt.Printf("  #%d %s %s %s %s %s\n",
			i+1, state,
			outcome.Seed.Denial.Code,
			outcome.Seed.Payer.Code,
			outcome.Seed.Complexity,
			dimStyle.Render(fmt.Sprintf("attempts=%d hard=%d %s",
				len(outcome.Result.Attempts),
				outcome.Result.Report.HardCount(),
				outcome.Duration.Round(1_000_000).String())))
	}
}

func printValidation(path string, s *scenario.Scenario, report validate.Report) {
	label := path
	if s != nil && s.Metadata.ScenarioID != "" {
		label = fmt.Sprintf("%s (%s)", path, s.Metadata.ScenarioID)
	}
	if report.Pass() {
		fmt.Printf("%s %s %s\n", passStyle.Render("PASS"), label, dimStyle.Render(report.Summary()))
	} else {
		fmt.Printf("%s %s %s\n", failStyle.Render("FAIL"), label, dimStyle.Render(report.Summary()))
	}
	for _, f := range report.Findings {
		if f.Hard() {
			fmt.Printf("  %s %s\n", failStyle.Render("x"), f.Diagnostic())
		} else {
			fmt.Printf("  %s %s\n", advisoryStyle.Render("~"), f.Diagnostic())
		}
	}
}
