package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the face similarity index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the HNSW face index from the database",
	Long: `Rebuild the in-memory HNSW index over every stored embedding and persist
it to database.index_path when that is set. Use this after editing the
database outside facewatch.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.service.RebuildIndex(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	fmt.Printf("Face index rebuilt with %d embeddings in %s\n", n, time.Since(start).Round(time.Millisecond))
	if cfg.Database.IndexPath != "" {
		fmt.Printf("Persisted to %s\n", cfg.Database.IndexPath)
	} else {
		fmt.Println("database.index_path is not set, the index was not persisted")
	}
	return nil
}
