package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/charlesoon/everything/cmd"
)

func openMain(command *cobra.Command, arguments []string) error {
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()
	return engine.Open(arguments)
}

var openCommand = &cobra.Command{
	Use:   "open <path> [<path>...]",
	Short: "Open paths with their default applications",
	Args:  cobra.MinimumNArgs(1),
	Run:   cmd.Mainify(openMain),
}

func revealMain(command *cobra.Command, arguments []string) error {
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()
	return engine.Reveal(arguments)
}

var revealCommand = &cobra.Command{
	Use:   "reveal <path> [<path>...]",
	Short: "Reveal paths in the platform file manager",
	Args:  cobra.MinimumNArgs(1),
	Run:   cmd.Mainify(revealMain),
}

func copyPathsMain(command *cobra.Command, arguments []string) error {
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()
	fmt.Println(engine.CopyPaths(arguments))
	return nil
}

var copyPathsCommand = &cobra.Command{
	Use:   "copy-paths <path> [<path>...]",
	Short: "Print a newline-joined path list for clipboard placement",
	Args:  cobra.MinimumNArgs(1),
	Run:   cmd.Mainify(copyPathsMain),
}

func trashMain(command *cobra.Command, arguments []string) error {
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()
	return engine.MoveToTrash(arguments)
}

var trashCommand = &cobra.Command{
	Use:   "trash <path> [<path>...]",
	Short: "Move paths to the trash",
	Args:  cobra.MinimumNArgs(1),
	Run:   cmd.Mainify(trashMain),
}

func renameMain(command *cobra.Command, arguments []string) error {
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()
	entry, err := engine.Rename(arguments[0], arguments[1])
	if err != nil {
		return err
	}
	fmt.Println(entry.Path)
	return nil
}

var renameCommand = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename an entry in place",
	Args:  cobra.ExactArgs(2),
	Run:   cmd.Mainify(renameMain),
}

func iconMain(command *cobra.Command, arguments []string) error {
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()
	encoded, err := engine.FileIcon(arguments[0])
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(encoded)
	return err
}

var iconCommand = &cobra.Command{
	Use:   "icon <ext>",
	Short: "Write the raster icon for an extension to standard output",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(iconMain),
}
