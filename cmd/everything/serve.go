package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/charlesoon/everything/cmd"
	"github.com/charlesoon/everything/pkg/events"
)

func serveMain(command *cobra.Command, arguments []string) error {
	// Create the service and defer its shutdown.
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()

	// Subscribe to state and progress events for console display.
	updates := engine.Bus().Subscribe(
		events.TopicIndexState,
		events.TopicIndexProgress,
		events.TopicIndexUpdated,
	)

	// Run the startup decision tree: fast resume with watcher and catchup,
	// or a full index.
	if err := engine.Start(); err != nil {
		return err
	}

	// Serve until a termination signal arrives, mirroring events onto the
	// status line.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, cmd.TerminationSignals...)
	printer := &cmd.StatusLinePrinter{UseStandardError: true}
	for {
		select {
		case <-signals:
			printer.BreakIfNonEmpty()
			return nil
		case event := <-updates:
			switch payload := event.Payload.(type) {
			case events.IndexStatePayload:
				printer.BreakIfNonEmpty()
				if payload.Message != "" {
					fmt.Fprintf(os.Stderr, "state: %s (%s)\n", payload.State, payload.Message)
				} else {
					fmt.Fprintf(os.Stderr, "state: %s\n", payload.State)
				}
			case events.IndexProgressPayload:
				printer.Print(fmt.Sprintf("scanned %d, indexed %d: %s",
					payload.Scanned, payload.Indexed, payload.CurrentPath))
			case events.IndexUpdatedPayload:
				printer.Print(fmt.Sprintf("catalog: %d entries", payload.EntriesCount))
			}
		}
	}
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexer and live watcher until terminated",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(serveMain),
}
