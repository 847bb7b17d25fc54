package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lendmatch/backend/internal/usecase"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local catalog replica",
	Long: `Loads the lender product catalog the way the client app does: from the
network inside a fetch window, from the local cache outside one.
Use --force to fetch regardless of the window.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "fetch from the network even outside a fetch window")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	if catalogSync == nil {
		return errors.New("sync service not configured")
	}

	result, err := catalogSync.Load(commandContext(cmd), syncForce)
	st := newStyler(cmd.OutOrStdout())
	if err != nil {
		cmd.Println(st.render(errorStyle, "No catalog available"))
		return fmt.Errorf("sync failed: %w", err)
	}

	count := len(result.Products)
	switch result.Decision {
	case usecase.DecisionStaleCache:
		cmd.Println(st.render(warningStyle, fmt.Sprintf("Network refresh failed, using %d cached products", count)))
		cmd.Printf("  reason: %v\n", result.FetchErr)
	case usecase.DecisionCache:
		cmd.Println(st.render(successStyle, fmt.Sprintf("Using %d cached products", count)))
	default:
		cmd.Println(st.render(successStyle, fmt.Sprintf("Fetched %d products (%s)", count, result.Decision)))
	}

	cmd.Println(st.render(mutedStyle, "Next fetch window: "+result.Window.NextWindow.UTC().Format(time.RFC3339)))
	return nil
}
