package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/charlesoon/everything/cmd"
)

func indexMain(command *cobra.Command, arguments []string) error {
	// Create the service and defer its shutdown.
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()

	// Run the full index.
	if err := engine.StartFullIndex(); err != nil {
		return err
	}

	// Track progress on a status line until background persistence
	// completes.
	printer := &cmd.StatusLinePrinter{UseStandardError: true}
	for engine.Indexing() {
		snapshot := engine.Status()
		printer.Print(fmt.Sprintf("%s: scanned %s, indexed %s",
			snapshot.State,
			humanize.Comma(int64(snapshot.Scanned)),
			humanize.Comma(int64(snapshot.Indexed)),
		))
		time.Sleep(200 * time.Millisecond)
	}
	printer.BreakIfNonEmpty()

	// Report the final counts.
	snapshot := engine.Status()
	fmt.Printf("Indexed %s entries", humanize.Comma(snapshot.EntriesCount))
	if snapshot.PermissionErrors > 0 {
		fmt.Printf(" (%d permission errors)", snapshot.PermissionErrors)
	}
	fmt.Println()

	// Done.
	return nil
}

var indexCommand = &cobra.Command{
	Use:   "index",
	Short: "Run a full index of the scan root",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(indexMain),
}

func resetMain(command *cobra.Command, arguments []string) error {
	// Create the service and defer its shutdown.
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()

	// Wipe and re-index.
	if err := engine.ResetIndex(); err != nil {
		return err
	}
	for engine.Indexing() {
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("Catalog reset and re-indexed")

	// Done.
	return nil
}

var resetCommand = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the catalog and re-index from scratch",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(resetMain),
}
