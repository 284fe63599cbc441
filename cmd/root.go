package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docdbgo/driver/cmd/session"
	"github.com/docdbgo/driver/cmd/topology"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "docstore",
		Short: "document database client driver",
		Long: fmt.Sprintf(`docstore (v%s)

A client driver for a document-oriented database: connection
management, retries and failover, and session-based units of work,
usable as both a Go library and this CLI.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of docstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("docstore v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(session.SessionCommands)
	RootCmd.AddCommand(topology.TopologyCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
