package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var warmCmd = &cobra.Command{
	Use:   "warm [prompt...]",
	Short: "Pre-generate checklist templates into the cache",
	Long: `Generates kits for a list of prompts so later requests are served
from the cache. Prompts come from arguments or, with --file, one per
line from a file.

Failures on individual prompts are reported but do not abort the run,
except a quota cooldown, which stops it since every remaining call
would be rejected anyway.

Example:
  tasklift warm "weekly groceries" "gym session"
  tasklift warm --file kits.txt`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)

	warmCmd.Flags().StringP("file", "f", "", "file with one kit prompt per line")
}

func runWarm(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")

	prompts := append([]string(nil), args...)
	if file != "" {
		fromFile, err := readPrompts(file)
		if err != nil {
			return err
		}
		prompts = append(prompts, fromFile...)
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts given (pass arguments or --file)")
	}

	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	// Create progress bar
	bar := progressbar.NewOptions64(
		int64(len(prompts)),
		progressbar.OptionSetDescription("Warming"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("kits"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)

	var failed int
	for _, prompt := range prompts {
		if _, err := svc.GenerateKit(cmd.Context(), prompt); err != nil {
			if _, active := svc.CooldownUntil(); active {
				fmt.Fprintln(os.Stderr)
				return fmt.Errorf("stopping warm-up: %w", err)
			}
			failed++
			fmt.Fprintf(os.Stderr, "\n%q failed: %v\n", prompt, err)
		}
		_ = bar.Add64(1)
	}

	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	if failed > 0 {
		return fmt.Errorf("%d of %d kits failed", failed, len(prompts))
	}
	fmt.Fprintf(os.Stderr, "Warmed %d kits\n", len(prompts))
	return nil
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt file: %w", err)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return prompts, nil
}
