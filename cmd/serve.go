package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/web"
)

// defaultShutdownTimeout bounds the graceful HTTP shutdown.
const defaultShutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Long: `Start the facewatch web dashboard.
The dashboard lists and enrolls users, shows statistics and system
information and, with --live, streams a recognition session running in the
same process.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default web.port)")
	serveCmd.Flags().String("host", "", "Host to bind to (default web.host)")
	serveCmd.Flags().Bool("live", false, "Run a recognition session on the camera source")
	serveCmd.Flags().Duration("shutdown-timeout", defaultShutdownTimeout, "Time allowed for in-flight requests on shutdown")
	serveCmd.Flags().StringSlice("allowed-origin", nil, "Additional CORS origins allowed to call the API")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	cfg.Web.AllowedOrigins = append(cfg.Web.AllowedOrigins, mustGetStringSlice(cmd, "allowed-origin")...)
	live := mustGetBool(cmd, "live")
	shutdownTimeout, err := mustGetDuration(cmd, "shutdown-timeout")
	if err != nil {
		return err
	}

	fmt.Printf("Opening %s database...\n", cfg.Database.Driver)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := web.NewServer(web.Deps{
		Config:   *cfg,
		Repo:     a.repo,
		Enroll:   a.service,
		Detector: a.engine.Name(),
		Logger:   logger,
	})

	sessionDone := make(chan struct{})
	if live {
		hub := server.Live()
		session, err := newSession(a, hub.Observe)
		if err != nil {
			return err
		}
		hub.Attach(session)
		go func() {
			defer close(sessionDone)
			rec, err := session.Run(ctx)
			if err != nil {
				logger.Error("recognition session stopped", "error", err)
			}
			if rec.ID != "" {
				hub.Finish(rec)
			}
		}()
		fmt.Printf("Live recognition on %s\n", cfg.Camera.Source)
	} else {
		close(sessionDone)
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting facewatch dashboard on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	startErr := server.Start()
	// Stop the session when the server fails to start and wait for its statistics to be saved.
	cancel()
	<-shutdownDone
	<-sessionDone
	if startErr != nil {
		return fmt.Errorf("starting server: %w", startErr)
	}
	return nil
}
