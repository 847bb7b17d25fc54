package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local catalog cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what is cached and how old it is",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached catalog",
	Long: `Removes the cached catalog. The next sync outside a fetch window will
be a cold start and go to the network.`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	if catalogCache == nil {
		return errors.New("cache not configured")
	}

	stats := catalogCache.Stats(commandContext(cmd))
	st := newStyler(cmd.OutOrStdout())
	if !stats.HasCache {
		cmd.Println(st.render(warningStyle, "Cache is empty"))
		return nil
	}

	cmd.Println(st.render(titleStyle, "Catalog cache"))
	cmd.Printf("  Products:   %d\n", stats.Count)
	cmd.Printf("  Source:     %s\n", stats.Source)
	if stats.LastFetchTime != nil {
		cmd.Printf("  Fetched:    %s\n", stats.LastFetchTime.UTC().Format(time.RFC3339))
	}
	if stats.CacheAge != nil {
		cmd.Printf("  Age:        %s\n", stats.CacheAge.Truncate(time.Second))
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	if catalogCache == nil {
		return errors.New("cache not configured")
	}
	if err := catalogCache.Clear(commandContext(cmd)); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	cmd.Println(newStyler(cmd.OutOrStdout()).render(successStyle, "Cache cleared"))
	return nil
}
