package cmd

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/enroll"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> [image|dir...]",
	Short: "Enroll a user from camera captures or image files",
	Long: `Enroll a user. Without image arguments the configured camera source is
sampled (system.enroll_samples frames). Directories are expanded to the
image files they contain. The largest face of every sample is embedded;
samples without a face are skipped.

Examples:
  # Capture 5 samples from the camera
  facewatch enroll alice

  # Enroll from files
  facewatch enroll bob photos/bob1.jpg photos/bob2.jpg

  # Replace the samples of an existing user
  facewatch enroll alice photos/alice/ --replace`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("samples", 0, "Number of camera samples (default system.enroll_samples)")
	enrollCmd.Flags().Duration("interval", defaultSampleInterval, "Pause between camera samples")
	enrollCmd.Flags().Bool("replace", false, "Replace the samples of an existing user")
	enrollCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// EnrollResult represents the result of an enroll command
type EnrollResult struct {
	Success    bool     `json:"success"`
	Name       string   `json:"name"`
	Samples    int      `json:"samples"`
	Skipped    int      `json:"skipped"`
	Replaced   bool     `json:"replaced"`
	Warnings   []string `json:"warnings,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	startTime := time.Now()
	samplesFlag := mustGetInt(cmd, "samples")
	replace := mustGetBool(cmd, "replace")
	jsonOutput := mustGetBool(cmd, "json")
	interval, err := mustGetDuration(cmd, "interval")
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	name := facematch.CleanLabel(args[0])
	if name == "" {
		return facematch.ErrEmptyLabel
	}
	if !replace {
		// Existing users are rejected before the camera is opened.
		if _, err := a.repo.GetUser(ctx, name); err == nil {
			return fmt.Errorf("user %q already exists, use --replace to overwrite", name)
		} else if !errors.Is(err, database.ErrUserNotFound) {
			return fmt.Errorf("checking user: %w", err)
		}
	}

	var samples []image.Image
	if len(args) > 1 {
		files, err := expandImagePaths(args[1:])
		if err != nil {
			return err
		}
		for _, f := range files {
			img, err := readImageFile(f)
			if err != nil {
				return err
			}
			samples = append(samples, img)
		}
	} else {
		n := samplesFlag
		if n <= 0 {
			n = cfg.System.EnrollSamples
		}
		if samples, err = captureSamples(ctx, n, interval); err != nil {
			return err
		}
	}

	var progress enroll.Progress
	if !jsonOutput {
		bar := progressbar.NewOptions(len(samples),
			progressbar.OptionSetDescription("Embedding samples"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		progress = func(done, total int) { _ = bar.Set(done) }
	}

	report, err := a.service.Enroll(ctx, enroll.Request{Name: name, Samples: samples, Replace: replace}, progress)
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return fmt.Errorf("user %q already exists, use --replace to overwrite", name)
		}
		return fmt.Errorf("enrollment failed: %w", err)
	}

	result := EnrollResult{
		Success:    true,
		Name:       report.User.Name,
		Samples:    report.Samples,
		Skipped:    report.Skipped,
		Replaced:   report.Replaced,
		Warnings:   report.Warnings,
		DurationMs: time.Since(startTime).Milliseconds(),
	}
	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println()
	fmt.Printf("Enrolled %s with %d samples", result.Name, result.Samples)
	if result.Skipped > 0 {
		fmt.Printf(" (%d without a face skipped)", result.Skipped)
	}
	fmt.Println()
	if result.Replaced {
		fmt.Println("Previous samples were replaced.")
	}
	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}
