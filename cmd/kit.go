package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var kitCmd = &cobra.Command{
	Use:   "kit <description>",
	Short: "Generate a reusable checklist template",
	Long: `Generates a named checklist template (5-15 items) from a short
description. Templates are cached for 24 hours per normalized prompt.

Example:
  tasklift kit "weekend camping trip"
  tasklift kit "new employee onboarding" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKit,
}

func init() {
	rootCmd.AddCommand(kitCmd)

	kitCmd.Flags().Bool("json", false, "print the kit as JSON")
}

func runKit(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	asJSON, _ := cmd.Flags().GetBool("json")

	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	kit, err := svc.GenerateKit(cmd.Context(), prompt)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(kit)
	}

	fmt.Printf("%s (%s)\n", kit.Name, kit.Category)
	for _, item := range kit.Items {
		fmt.Printf("  [ ] %s\n", item)
	}
	if len(kit.Tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(kit.Tags, ", "))
	}
	return nil
}
