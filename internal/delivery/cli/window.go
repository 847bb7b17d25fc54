package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Show the fetch-window schedule",
	Args:  cobra.NoArgs,
	RunE:  runWindow,
}

func init() {
	rootCmd.AddCommand(windowCmd)
}

func runWindow(cmd *cobra.Command, _ []string) error {
	if fetchWindow == nil {
		return errors.New("fetch window not configured")
	}

	now := clock.Now()
	info := fetchWindow.Info(now)
	hours := fetchWindow.Hours()
	st := newStyler(cmd.OutOrStdout())

	cmd.Printf("Windows:  %02d:00 and %02d:00 UTC\n", hours[0], hours[1])
	if info.IsAllowed {
		cmd.Println("Status:   " + st.render(successStyle, "open"))
	} else {
		cmd.Println("Status:   " + st.render(warningStyle, "closed"))
	}
	cmd.Printf("Next:     %s (in %s)\n", info.NextWindow.UTC().Format(time.RFC3339), info.NextWindow.Sub(now).Truncate(time.Minute))
	cmd.Println(st.render(mutedStyle, fmt.Sprintf("          %s", info.Reason)))
	return nil
}
