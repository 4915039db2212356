package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/charlesoon/everything/cmd"
)

func statusMain(command *cobra.Command, arguments []string) error {
	// Create the service and defer its shutdown.
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()

	// Populate the snapshot from cached counters and print it.
	if err := engine.LoadCachedStatus(); err != nil {
		return err
	}
	snapshot := engine.Status()
	fmt.Println("State:", snapshot.State)
	fmt.Println("Entries:", humanize.Comma(snapshot.EntriesCount))
	if snapshot.LastUpdated != 0 {
		fmt.Println("Last updated:", time.Unix(snapshot.LastUpdated, 0).Format(time.RFC3339))
	}
	if snapshot.PermissionErrors > 0 {
		fmt.Println("Permission errors:", snapshot.PermissionErrors)
	}
	if snapshot.Message != "" {
		fmt.Println("Message:", snapshot.Message)
	}

	// Done.
	return nil
}

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the index status",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(statusMain),
}
