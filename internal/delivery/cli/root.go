// Package cli implements lendctl, the client-side catalog tool.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/usecase"
)

// Services are the dependencies the commands run against. main wires them
// from configuration; tests swap in fakes.
type Services struct {
	Sync      *usecase.CatalogSync
	Cache     *usecase.PersistentCache
	Window    *usecase.FetchWindow
	Engine    *usecase.RecommendationEngine
	Scheduler *usecase.Scheduler
	Clock     domain.Clock
}

var (
	catalogSync  *usecase.CatalogSync
	catalogCache *usecase.PersistentCache
	fetchWindow  *usecase.FetchWindow
	engine       *usecase.RecommendationEngine
	scheduler    *usecase.Scheduler
	clock        domain.Clock = domain.SystemClock{}
)

var rootCmd = &cobra.Command{
	Use:   "lendctl",
	Short: "Client-side lender product catalog tool",
	Long: `lendctl keeps a local replica of the lender product catalog and
ranks products for a funding profile.

The replica is refreshed from the network only inside the twice-daily
fetch windows; outside them the cached catalog is served.`,
	SilenceUsage: true,
}

// SetServices installs the services used by every command
func SetServices(s Services) {
	catalogSync = s.Sync
	catalogCache = s.Cache
	fetchWindow = s.Window
	engine = s.Engine
	scheduler = s.Scheduler
	if s.Clock != nil {
		clock = s.Clock
	}
}

// ExecuteContext runs the command line; ctx is cancelled on shutdown signals
func ExecuteContext(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
