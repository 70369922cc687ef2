package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var breakdownCmd = &cobra.Command{
	Use:   "breakdown <task>",
	Short: "Split a task into concrete subtasks",
	Long: `Asks the model to split a large task into 3-7 actionable steps.
Breakdowns are cached for 30 days per normalized task.

Example:
  tasklift breakdown "plan the office move"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBreakdown,
}

func init() {
	rootCmd.AddCommand(breakdownCmd)
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	steps, err := svc.Breakdown(cmd.Context(), task)
	if err != nil {
		return err
	}

	for i, step := range steps {
		fmt.Printf("%d. %s\n", i+1, step)
	}
	return nil
}
