package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlesoon/everything/pkg/everything"
)

func versionMain(command *cobra.Command, arguments []string) {
	fmt.Println(everything.Version)
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run:   versionMain,
}
