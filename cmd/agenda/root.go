package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agenda",
		Short:         "Appointment scheduling service for a single business calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newAvailabilityCmd())
	root.AddCommand(newOpeningHoursCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agenda %s (commit=%s)\n", Version, CommitSHA)
		},
	})

	return root
}
