package cmd

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var refineCmd = &cobra.Command{
	Use:   "refine <task title>",
	Short: "Classify a task title into category, tags, and urgency",
	Long: `Sends a task title through AI classification and prints the
resulting metadata as JSON.

Refinement is best effort: it shares a small per-minute call budget, and
when the budget is exhausted the default metadata is returned instead of
waiting. Results are cached for 30 days per normalized title.

Example:
  tasklift refine "buy milk tomorrow morning"
  tasklift refine "finish quarterly report"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRefine,
}

func init() {
	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) error {
	title := strings.Join(args, " ")

	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	md, err := svc.Refine(cmd.Context(), title)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(md)
}
