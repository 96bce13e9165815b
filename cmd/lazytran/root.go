package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	debugFlag bool
)

// errSignalShutdown marks a clean shutdown triggered by a signal, so
// Execute's caller can map it to exit code 130 instead of 1.
var errSignalShutdown = errors.New("shut down by signal")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lazytran",
		Short: "Lazily wake a Minecraft server only when a real player connects",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to lazytran.yaml")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(newStartCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// Execute builds and runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
