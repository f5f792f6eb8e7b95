package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/capture"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/detectcache"
	"github.com/kozaktomas/facewatch/internal/pipeline"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Run real-time recognition on the camera source",
	Long: `Run the recognition loop on the configured camera source until Ctrl+C or
until a finite source (dir:/path) is exhausted. Matched users are printed as
they appear and the session statistics are stored when the loop ends.

Examples:
  facewatch recognize
  facewatch recognize --source dir:./frames
  facewatch recognize --source rtsp://camera.local/stream --json`,
	Args: cobra.NoArgs,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("source", "", "Override camera.source")
	recognizeCmd.Flags().Bool("quiet", false, "Only print the session summary")
	recognizeCmd.Flags().Bool("json", false, "Print the session summary as JSON")
	recognizeCmd.Flags().Float64("tolerance", 0, "Override detection.tolerance (0 keeps the configured value)")
}

// applyTolerance overrides the configured match tolerance from the --tolerance flag.
func applyTolerance(cmd *cobra.Command) error {
	t := mustGetFloat64(cmd, "tolerance")
	if t == 0 {
		return nil
	}
	if t < 0 || t > 1 {
		return fmt.Errorf("--tolerance must be within [0, 1], got %g", t)
	}
	cfg.Detection.Tolerance = t
	return nil
}

// newSession wires a recognition session over the configured camera source.
func newSession(a *app, observers ...pipeline.Observer) (*pipeline.Session, error) {
	src, err := capture.New(cfg.Camera, logger)
	if err != nil {
		return nil, err
	}
	cache, err := detectcache.New(cfg.Detection.CacheTimeout, cfg.Detection.MaxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating detection cache: %w", err)
	}

	matcher := a.service.Matcher()
	perf := pipeline.NewPerformanceMonitor(cfg.Performance, logger)
	stability := pipeline.NewStabilityMonitor(cfg.Stability)
	processor := pipeline.NewProcessor(*cfg, pipeline.ProcessorDeps{
		Cache:     cache,
		Engine:    a.engine,
		Matcher:   matcher,
		Perf:      perf,
		Stability: stability,
		Logger:    logger,
	})

	return pipeline.NewSession(*cfg, pipeline.SessionDeps{
		Source:    src,
		Processor: processor,
		Perf:      perf,
		Stability: stability,
		Matcher:   matcher,
		Store:     a.repo,
		Logger:    logger,
		Observers: observers,
	}), nil
}

// matchPrinter prints the recognized users whenever the set in view changes.
func matchPrinter() pipeline.Observer {
	var last string
	var recovery bool
	return func(ev pipeline.FrameEvent) {
		if ev.Recovery != recovery {
			recovery = ev.Recovery
			if recovery {
				fmt.Printf("[%s] recovery mode on (%.1f fps)\n", ev.Time.Format(time.TimeOnly), ev.FPS)
			} else {
				fmt.Printf("[%s] recovery mode off (%.1f fps)\n", ev.Time.Format(time.TimeOnly), ev.FPS)
			}
		}
		if ev.Result.Skipped {
			return
		}

		var parts []string
		unknown := 0
		for _, r := range ev.Result.Results {
			if r.IsMatch {
				parts = append(parts, fmt.Sprintf("%s (%.2f)", r.Label, r.Confidence))
			} else {
				unknown++
			}
		}
		slices.Sort(parts)
		if unknown > 0 {
			parts = append(parts, fmt.Sprintf("%d unknown", unknown))
		}
		line := strings.Join(parts, ", ")
		if line == last {
			return
		}
		last = line
		if line == "" {
			line = "no faces"
		}
		fmt.Printf("[%s] %s\n", ev.Time.Format(time.TimeOnly), line)
	}
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	quiet := mustGetBool(cmd, "quiet")
	jsonOutput := mustGetBool(cmd, "json")
	if source := mustGetString(cmd, "source"); source != "" {
		cfg.Camera.Source = source
	}
	if err := applyTolerance(cmd); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var observers []pipeline.Observer
	if !quiet && !jsonOutput {
		observers = append(observers, matchPrinter())
	}
	session, err := newSession(a, observers...)
	if err != nil {
		return err
	}

	if !jsonOutput {
		fmt.Printf("Recognizing %d users on %s (detector %s)\n",
			len(a.service.Matcher().Store().Labels()), cfg.Camera.Source, a.engine.Name())
		fmt.Println("Press Ctrl+C to stop")
	}

	rec, runErr := session.Run(ctx)
	if rec.ID == "" {
		return runErr
	}

	if jsonOutput {
		if err := outputJSON(rec); err != nil {
			return err
		}
		return runErr
	}
	printSessionSummary(rec)
	return runErr
}

func printSessionSummary(rec database.SessionRecord) {
	fmt.Println("\nSession summary:")
	fmt.Printf("  ID:            %s\n", rec.ID)
	fmt.Printf("  Status:        %s\n", rec.Status)
	fmt.Printf("  Duration:      %s\n", rec.EndedAt.Sub(rec.StartedAt).Round(time.Second))
	fmt.Printf("  Frames:        %d (%d dropped, %d errors)\n", rec.TotalFrames, rec.DroppedFrames, rec.ErrorCount)
	fmt.Printf("  Recognitions:  %d of %d attempts, %d unknown faces\n",
		rec.Recognitions, rec.RecognitionAttempts, rec.UnknownFaces)
	fmt.Printf("  Average FPS:   %.1f\n", rec.AverageFPS)
	fmt.Printf("  Processing:    %.1f ms/frame\n", rec.AverageProcessingMS)
	fmt.Printf("  Memory:        %.1f MB\n", rec.AverageMemoryMB)
}
