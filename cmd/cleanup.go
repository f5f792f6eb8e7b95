package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old recognition logs and session statistics",
	Long: `Delete recognition logs and session records older than the retention
period (system.log_retention_days, 30 days by default).

Examples:
  facewatch cleanup
  facewatch cleanup --days 7 --json`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int("days", 0, "Retention in days (default system.log_retention_days)")
	cleanupCmd.Flags().Bool("json", false, "Output as JSON")
}

// CleanupResult represents the result of a cleanup run
type CleanupResult struct {
	Cutoff          time.Time `json:"cutoff"`
	LogsDeleted     int64     `json:"logs_deleted"`
	SessionsDeleted int64     `json:"sessions_deleted"`
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	days := mustGetInt(cmd, "days")
	jsonOutput := mustGetBool(cmd, "json")
	if days <= 0 {
		days = cfg.System.LogRetentionDays
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	cutoff := time.Now().AddDate(0, 0, -days)
	logs, sessions, err := repo.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	logger.Info("old records deleted", "cutoff", cutoff, "logs", logs, "sessions", sessions)

	result := CleanupResult{Cutoff: cutoff, LogsDeleted: logs, SessionsDeleted: sessions}
	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Printf("Deleted %d recognition logs and %d sessions older than %s\n",
		logs, sessions, cutoff.Local().Format(time.DateOnly))
	return nil
}
