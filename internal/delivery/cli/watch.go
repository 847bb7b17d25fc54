package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the replica current until interrupted",
	Long: `Runs the fetch-window scheduler in the foreground: one network sync per
window, retried with backoff on failure. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if scheduler == nil || fetchWindow == nil {
		return errors.New("scheduler not configured")
	}

	ctx := commandContext(cmd)
	hours := fetchWindow.Hours()
	st := newStyler(cmd.OutOrStdout())
	cmd.Println(st.render(titleStyle, fmt.Sprintf("Watching fetch windows at %02d:00 and %02d:00 UTC", hours[0], hours[1])))

	scheduler.Start(ctx)
	<-ctx.Done()
	scheduler.Stop()

	cmd.Println(st.render(mutedStyle, "Stopped"))
	return nil
}
