package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the AI response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-family cache statistics",
	Long: `Prints hit/miss counters and entry counts for each cache family,
plus the quota cooldown state.

Example:
  tasklift cache stats`,
	RunE: runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached AI responses",
	Long: `Clears every cache family and persists the empty state. The next
operation of each kind will call the API again.

Example:
  tasklift cache clear`,
	RunE: runCacheClear,
}

var cacheResetCooldownCmd = &cobra.Command{
	Use:   "reset-cooldown",
	Short: "Clear an active quota cooldown",
	RunE:  runCacheResetCooldown,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheResetCooldownCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	stats := svc.CacheStats()
	families := make([]string, 0, len(stats))
	for f := range stats {
		families = append(families, f)
	}
	sort.Strings(families)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tENTRIES\tHITS\tMISSES\tHIT RATE\tEVICTIONS\tEXPIRED")
	for _, f := range families {
		s := stats[f]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f%%\t%d\t%d\n",
			f, s.Entries, s.Hits, s.Misses, s.HitRate()*100, s.Evictions, s.Expirations)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if until, active := svc.CooldownUntil(); active {
		fmt.Printf("\nquota cooldown active until %s (%s remaining)\n",
			until.Format(time.RFC3339), time.Until(until).Round(time.Second))
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	svc.ClearCaches()
	fmt.Fprintln(os.Stderr, "Cache cleared")
	return nil
}

func runCacheResetCooldown(cmd *cobra.Command, args []string) error {
	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	svc.ResetCooldown()
	fmt.Fprintln(os.Stderr, "Cooldown cleared")
	return nil
}
