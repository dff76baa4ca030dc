package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mvoronin-dev/pocketledger/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		buildinfo.PrintBuildData(os.Stdout)
	},
}
