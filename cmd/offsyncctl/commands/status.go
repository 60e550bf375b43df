package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display a snapshot of the connected offsync daemon: connectivity,
queue depths, cache utilization and the last sync cycle.

Examples:
  # Check status of the local daemon
  offsyncctl status

  # Output as JSON
  offsyncctl status -o json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// daemonStatus mirrors the GET /v1/status payload.
type daemonStatus struct {
	Connectivity struct {
		Status     string    `json:"status"`
		Transport  string    `json:"transport"`
		ObservedAt time.Time `json:"observed_at"`
	} `json:"connectivity"`
	Queue struct {
		Pending      int `json:"pending"`
		Syncing      int `json:"syncing"`
		DeadLettered int `json:"dead_lettered"`
	} `json:"queue"`
	Cache struct {
		Entries    int   `json:"entries"`
		TotalBytes int64 `json:"total_bytes"`
		MaxBytes   int64 `json:"max_bytes"`
		MaxEntries int   `json:"max_entries"`
	} `json:"cache"`
	LastSync *syncSummary `json:"last_sync,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status daemonStatus
	if err := newClient(cmd).get("/v1/status", &status); err != nil {
		return err
	}

	if done, err := printJSON(cmd, status); done {
		return err
	}

	fmt.Println()
	fmt.Println("offsync Daemon Status")
	fmt.Println("=====================")
	fmt.Println()

	switch status.Connectivity.Status {
	case "online":
		fmt.Printf("  Connectivity:  \033[32m● %s\033[0m (%s)\n", status.Connectivity.Status, status.Connectivity.Transport)
	case "limited":
		fmt.Printf("  Connectivity:  \033[33m● %s\033[0m (%s)\n", status.Connectivity.Status, status.Connectivity.Transport)
	default:
		fmt.Printf("  Connectivity:  \033[31m○ %s\033[0m\n", status.Connectivity.Status)
	}
	fmt.Printf("  Observed:      %s\n", status.Connectivity.ObservedAt.Local().Format(time.RFC3339))
	fmt.Println()

	fmt.Printf("  Queue:         %d pending, %d syncing, %d dead-lettered\n",
		status.Queue.Pending, status.Queue.Syncing, status.Queue.DeadLettered)
	fmt.Printf("  Cache:         %d entries, %d / %d bytes\n",
		status.Cache.Entries, status.Cache.TotalBytes, status.Cache.MaxBytes)

	if status.LastSync != nil {
		fmt.Println()
		fmt.Printf("  Last sync:     %s (trigger: %s)\n",
			status.LastSync.StartedAt.Local().Format(time.RFC3339), status.LastSync.Trigger)
		fmt.Printf("                 %d attempted, %d completed, %d retried, %d dead-lettered\n",
			status.LastSync.Attempted, status.LastSync.Completed,
			status.LastSync.Retried, status.LastSync.DeadLettered)
		if status.LastSync.Aborted {
			fmt.Println("                 cycle aborted (connectivity lost)")
		}
	}
	fmt.Println()

	return nil
}
