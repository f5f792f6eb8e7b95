package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/enroll"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image|dir...>",
	Short: "Recognize enrolled users in still images",
	Long: `Detect every face in the given images and match it against the enrolled users.

Examples:
  facewatch identify snapshot.jpg
  facewatch identify captures/ --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Bool("json", false, "Output as JSON")
	identifyCmd.Flags().Float64("tolerance", 0, "Override detection.tolerance (0 keeps the configured value)")
}

// IdentifyResult is the outcome for one image file
type IdentifyResult struct {
	File string `json:"file"`
	*enroll.Identification
	Error string `json:"error,omitempty"`
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	if err := applyTolerance(cmd); err != nil {
		return err
	}

	files, err := expandImagePaths(args)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]IdentifyResult, 0, len(files))
	for _, f := range files {
		res := IdentifyResult{File: f}
		img, err := readImageFile(f)
		if err == nil {
			res.Identification, err = a.service.Identify(ctx, img)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	if jsonOutput {
		return outputJSON(results)
	}

	for _, res := range results {
		if res.Error != "" {
			fmt.Printf("%s: error: %s\n", res.File, res.Error)
			continue
		}
		fmt.Printf("%s: %d faces, %d recognized\n", res.File, res.FacesDetected, len(res.Matches))
		for _, m := range res.Matches {
			fmt.Printf("  %-20s %.2f  at %d,%d %dx%d\n", m.Name, m.Confidence, m.Box.X, m.Box.Y, m.Box.W, m.Box.H)
		}
	}
	return nil
}
