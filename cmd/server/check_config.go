package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/ppttools/internal/selection"
	"github.com/example/ppttools/internal/storage"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "listen:      %s\n", settings.Address())
			fmt.Fprintf(out, "storage:     %s\n", storage.Canonical(settings.Storage.Provider))
			fmt.Fprintf(out, "delay:       %s\n", settings.ProcessingDelay())
			fmt.Fprintf(out, "accept:      %s\n", selection.ParseAccept(settings.Processing.Accept))
			fmt.Fprintf(out, "workers:     %d (queue %d)\n", settings.Workers.Count, settings.Workers.QueueSize)
			fmt.Fprintf(out, "workspaces:  ttl %s, sweep %s\n", settings.WorkspaceTTL(), settings.SweepInterval())
			fmt.Fprintf(out, "auth:        %t\n", settings.Features.EnableAuth)
			fmt.Fprintf(out, "websocket:   %t\n", settings.Features.EnableWebSocket)
			fmt.Fprintln(out, "Configuration test successful")
			return nil
		},
	}
}
