package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache utilization",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached entries",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cacheStats mirrors the GET /v1/cache/stats payload.
type cacheStats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	MaxBytes   int64 `json:"max_bytes"`
	MaxEntries int   `json:"max_entries"`
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	var stats cacheStats
	if err := newClient(cmd).get("/v1/cache/stats", &stats); err != nil {
		return err
	}

	if done, err := printJSON(cmd, stats); done {
		return err
	}

	fmt.Printf("Entries:  %d", stats.Entries)
	if stats.MaxEntries > 0 {
		fmt.Printf(" / %d", stats.MaxEntries)
	}
	fmt.Println()
	fmt.Printf("Size:     %d / %d bytes\n", stats.TotalBytes, stats.MaxBytes)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if err := newClient(cmd).del("/v1/cache"); err != nil {
		return err
	}

	fmt.Println("Cache cleared.")
	return nil
}
