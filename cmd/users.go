package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/constants"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List and manage enrolled users",
	Long:  `List enrolled users. Use subcommands to show or delete a user.`,
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one enrolled user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersShow,
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <name...>",
	Short: "Delete enrolled users",
	Long: `Delete one or more users with all their samples.

Example:
  facewatch users delete alice
  facewatch users delete alice --one   # remove only the oldest sample`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUsersDelete,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersShowCmd)
	usersCmd.AddCommand(usersDeleteCmd)

	usersCmd.Flags().Bool("json", false, "Output as JSON")
	usersShowCmd.Flags().Bool("json", false, "Output as JSON")
	usersShowCmd.Flags().Int("similar", constants.DefaultSimilarLimit, "Number of similar users to show (0 to skip)")

	usersDeleteCmd.Flags().Bool("one", false, "Remove only the oldest sample")
	usersDeleteCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func formatLastSeen(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	users, err := repo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if jsonOutput {
		return outputJSON(users)
	}

	if len(users) == 0 {
		fmt.Println("No users enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSAMPLES\tRECOGNITIONS\tLAST SEEN\tENROLLED")
	fmt.Fprintln(w, "----\t-------\t------------\t---------\t--------")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", u.Name, u.SampleCount, u.RecognitionCount,
			formatLastSeen(u.LastSeen), u.CreatedAt.Local().Format(time.DateOnly))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d users\n", len(users))
	return nil
}

func runUsersShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")
	similarLimit := mustGetInt(cmd, "similar")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.repo.GetUser(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get user %s: %w", args[0], err)
	}

	var similar []string
	if similarLimit > 0 {
		found, err := a.service.SimilarUsers(ctx, user.Name, similarLimit)
		if err != nil {
			return fmt.Errorf("finding similar users: %w", err)
		}
		for _, s := range found {
			similar = append(similar, fmt.Sprintf("%s (%.3f)", s.Name, s.Distance))
		}
	}

	if jsonOutput {
		return outputJSON(struct {
			Name        string    `json:"name"`
			SampleCount int       `json:"sample_count"`
			CreatedAt   time.Time `json:"created_at"`
			UpdatedAt   time.Time `json:"updated_at"`
			Similar     []string  `json:"similar,omitempty"`
		}{user.Name, len(user.Embeddings), user.CreatedAt, user.UpdatedAt, similar})
	}

	fmt.Printf("Name:      %s\n", user.Name)
	fmt.Printf("Samples:   %d\n", len(user.Embeddings))
	fmt.Printf("Enrolled:  %s\n", user.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("Updated:   %s\n", user.UpdatedAt.Local().Format(time.DateTime))
	if len(user.Embeddings) > 0 {
		fmt.Printf("Dimension: %d\n", user.Embeddings[0].Dim)
	}
	if len(similar) > 0 {
		fmt.Printf("Similar:   %s\n", strings.Join(similar, ", "))
	}
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	one := mustGetBool(cmd, "one")
	skipConfirm := mustGetBool(cmd, "yes")

	if !skipConfirm {
		what := "all samples of"
		if one {
			what = "the oldest sample of"
		}
		fmt.Printf("Delete %s %s? [y/N]: ", what, strings.Join(args, ", "))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, name := range args {
		if one {
			if err := a.service.DeleteOne(ctx, name); err != nil {
				fmt.Printf("Failed to delete sample of %s: %v\n", name, err)
				failed++
				continue
			}
			fmt.Printf("Deleted one sample of %s\n", name)
			continue
		}
		n, err := a.service.Delete(ctx, name)
		if err != nil {
			fmt.Printf("Failed to delete %s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Printf("Deleted %s (%d samples)\n", name, n)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(args))
	}
	return nil
}
