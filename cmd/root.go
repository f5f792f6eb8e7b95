package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/logging"
)

var (
	configPath string

	// cfg and logger are set by loadConfig before any command runs.
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "facewatch",
	Short: "Face enrollment and real-time recognition",
	Long: `facewatch enrolls people from camera captures or image files and recognizes
them in a live video stream. Enrolled users, recognition logs and session
statistics are stored in SQLite or PostgreSQL, and a web dashboard shows the
live session.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	path := configPath
	if path == "" {
		path = os.Getenv("FACEWATCH_CONFIG")
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	logger = logging.New(cfg.System.LogLevel, cfg.System.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	return nil
}
