package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and batch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintf(stdout, "  Running:        %s\n", yesNo(status.Running))
				fmt.Fprintf(stdout, "  PID:            %d\n", status.PID)
				fmt.Fprintf(stdout, "  Socket:         %s\n", status.SocketPath)
				fmt.Fprintf(stdout, "  Database:       %s\n", status.DatabasePath)
				fmt.Fprintf(stdout, "  Active batches: %d\n", status.ActiveBatches)
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Batches", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(status.Batches) == 0 {
					fmt.Fprintln(stdout, "No active batches")
					return nil
				}

				headers := []string{"User", "Source", "Dest", "Done", "Failed", "Progress", "ETA", "State"}
				aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
				fmt.Fprintln(stdout, renderTable(headers, batchRows(status.Batches), aligns))
				return nil
			})
		},
	}
}
