package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var motivateCmd = &cobra.Command{
	Use:   "motivate <pending-count>",
	Short: "Generate a motivational blurb for the task list",
	Long: `Generates one short motivational sentence tuned to how many tasks
are still pending. Responses are cached briefly so a dashboard polling
this command does not hammer the API.

Example:
  tasklift motivate 3
  tasklift motivate 0`,
	Args: cobra.ExactArgs(1),
	RunE: runMotivate,
}

func init() {
	rootCmd.AddCommand(motivateCmd)
}

func runMotivate(cmd *cobra.Command, args []string) error {
	pending, err := strconv.Atoi(args[0])
	if err != nil || pending < 0 {
		return fmt.Errorf("pending-count must be a non-negative integer, got %q", args[0])
	}

	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	blurb, err := svc.Motivate(cmd.Context(), pending)
	if err != nil {
		return err
	}

	fmt.Println(blurb)
	return nil
}
