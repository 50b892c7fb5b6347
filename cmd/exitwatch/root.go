package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for exitwatch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exitwatch",
		Short: "Find hosts that talked to Tor exit nodes in a packet capture",
		Long: `exitwatch correlates the destinations of a packet capture with the Tor
Project's list of exit node addresses and reports every local source that
contacted an exit node, with the time of each contact.

The exit list is cached in the XDG cache directory. Use --fetch or
'exitwatch exitlist update' to download a fresh copy, optionally through Tor.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewExitListCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "exitwatch:", err)
		os.Exit(1)
	}
}
