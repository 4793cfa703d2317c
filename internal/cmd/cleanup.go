package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tandemlabs/tandem/internal/persist"
)

var (
	cleanupOlderThan time.Duration
	cleanupName      string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old saved sessions",
	Long: `Delete saved session records older than the configured age
(persistence.cleanup_max_age_days, default 30 days). Individual files that
cannot be read or deleted are reported and skipped; they never abort the
run.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "age threshold (e.g. 720h); overrides the configured default")
	cleanupCmd.Flags().StringVar(&cleanupName, "name", "", "only delete sessions whose name matches this glob pattern")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	maxAge := cleanupOlderThan
	if maxAge == 0 {
		maxAge = a.cfg.Persistence.CleanupMaxAge()
	}

	result, err := a.store.Cleanup(persist.CleanupOptions{
		MaxAge:      maxAge,
		NamePattern: cleanupName,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d, skipped %d\n", result.Deleted, result.Skipped)
	if len(result.Failed) > 0 {
		fmt.Printf("Failed %d:\n", len(result.Failed))
		for _, f := range result.Failed {
			fmt.Printf("  %s: %s\n", f.File, f.Reason)
		}
	}
	return nil
}
