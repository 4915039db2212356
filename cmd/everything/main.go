package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlesoon/everything/cmd"
	"github.com/charlesoon/everything/pkg/everything"
)

func rootMain(command *cobra.Command, arguments []string) {
	// Print version information, if requested.
	if rootConfiguration.version {
		fmt.Println(everything.Version)
		return
	}

	// If no flags were set, then print help information and bail. We don't
	// have to worry about warning about arguments being present here because
	// arguments can't even reach this point (they will be mistaken for
	// subcommands and an error will be displayed).
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "everything",
	Short: "Everything indexes and searches file names at interactive speed.",
	Run:   rootMain,
}

var rootConfiguration struct {
	// help indicates the presence of the -h/--help flag.
	help bool
	// version indicates the presence of the -V/--version flag.
	version bool
}

func init() {
	// Bind flags to configuration. We manually add help to override the
	// default message, but Cobra still implements it automatically.
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	// Disable Cobra's command sorting behavior. By default, it sorts
	// commands alphabetically in the help output.
	cobra.EnableCommandSorting = false

	// Register commands. We do this here (rather than in individual init
	// functions) so that we can control the order.
	rootCommand.AddCommand(
		serveCommand,
		statusCommand,
		indexCommand,
		resetCommand,
		searchCommand,
		openCommand,
		revealCommand,
		copyPathsCommand,
		trashCommand,
		renameCommand,
		iconCommand,
		versionCommand,
	)
}

func main() {
	// Disable colorized output where the terminal can't render it.
	cmd.ConfigureColorOutput()

	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
