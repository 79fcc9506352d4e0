// Package main is the entry point for the parleyd chat session server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configPath string
	debug      bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "parleyd",
		Short: "Durable keyed chat session server",
		Long: `Parleyd serves conversational sessions over HTTP. Each session key
owns a durable transcript; turns against the same key are applied one
at a time in arrival order, and survive process restarts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
