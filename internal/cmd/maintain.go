package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"headlines/internal/store"
	"headlines/internal/view"
)

var (
	maintainVacuum    bool
	maintainAnalyze   bool
	maintainPurgeDays int
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Purge old read items and compact the database",
	Long: `Run database maintenance without starting the server.

Examples:
  headlines maintain --vacuum
  headlines maintain --purge-days 30 --analyze`,
	Args: cobra.NoArgs,
	RunE: runMaintain,
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainVacuum, "vacuum", true, "rebuild the database file")
	maintainCmd.Flags().BoolVar(&maintainAnalyze, "analyze", false, "refresh query planner statistics")
	maintainCmd.Flags().IntVar(&maintainPurgeDays, "purge-days", 0, "delete read items older than this many days")
	rootCmd.AddCommand(maintainCmd)
}

func runMaintain(cmd *cobra.Command, _ []string) error {
	cfg, release, err := loadConfig()
	if err != nil {
		return err
	}
	defer release()

	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := db.Close()
		if closeErr != nil {
			slog.Warn("db close failed", "err", closeErr)
		}
	}()

	opts := store.MaintenanceOptions{Vacuum: maintainVacuum, Analyze: maintainAnalyze}
	if maintainPurgeDays > 0 {
		opts.PurgeReadBefore = time.Now().UTC().AddDate(0, 0, -maintainPurgeDays)
	}

	report, err := store.Maintain(cmd.Context(), db, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "purged %d read items in %s, database %s -> %s\n",
		report.PurgedItems,
		view.FormatDuration(report.Elapsed),
		view.FormatBytes(report.SizeBefore),
		view.FormatBytes(report.SizeAfter),
	)

	return nil
}
