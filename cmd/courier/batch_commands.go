package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"courier/internal/ipc"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Submit and manage relay batches",
	}

	batchCmd.AddCommand(newBatchAddCommand(ctx))
	batchCmd.AddCommand(newBatchPauseCommand(ctx))
	batchCmd.AddCommand(newBatchResumeCommand(ctx))
	batchCmd.AddCommand(newBatchCancelCommand(ctx))
	batchCmd.AddCommand(newBatchInfoCommand(ctx))

	return batchCmd
}

func newBatchAddCommand(ctx *commandContext) *cobra.Command {
	var sourceKind string

	cmd := &cobra.Command{
		Use:   "add <user-id> <source-chat> <from>[-<to>] <dest-chat>",
		Short: "Queue a message range for relay",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			destChat, err := parseID(args[3], "destination chat")
			if err != nil {
				return err
			}
			rangeStart, rangeEnd, err := parseMessageRange(args[2])
			if err != nil {
				return err
			}

			req := ipc.BatchAddRequest{
				UserID:     userID,
				Source:     sourceKind,
				SourceID:   strings.TrimSpace(args[1]),
				RangeStart: rangeStart,
				RangeEnd:   rangeEnd,
				DestChat:   destChat,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BatchAdd(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d message(s) for user %d (batch %s)\n", resp.Total, userID, resp.BatchID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceKind, "source", "", "Source chat kind (public, private, or bot)")
	return cmd
}

func newBatchPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <user-id>",
		Short: "Pause a user's active batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BatchPause(userID)
				if err != nil {
					return err
				}
				if !resp.Applied {
					return fmt.Errorf("no active batch for user %d", userID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paused batch for user %d\n", userID)
				return nil
			})
		},
	}
}

func newBatchResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <user-id>",
		Short: "Resume a paused batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BatchResume(userID)
				if err != nil {
					return err
				}
				if !resp.Applied {
					return fmt.Errorf("no active batch for user %d", userID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed batch for user %d\n", userID)
				return nil
			})
		},
	}
}

func newBatchCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <user-id>",
		Short: "Cancel a user's active batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BatchCancel(userID)
				if err != nil {
					return err
				}
				if !resp.Applied {
					return fmt.Errorf("no active batch for user %d", userID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled batch for user %d\n", userID)
				return nil
			})
		},
	}
}

func newBatchInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <user-id>",
		Short: "Describe a user's active batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueDescribe(userID)
				if err != nil {
					return err
				}
				if !resp.Found {
					fmt.Fprintf(cmd.OutOrStdout(), "No active batch for user %d\n", userID)
					return nil
				}
				printBatchInfo(cmd, resp.Batch)
				return nil
			})
		},
	}
}

func printBatchInfo(cmd *cobra.Command, batch ipc.BatchView) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader(fmt.Sprintf("Batch %s", batch.BatchID), colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintf(stdout, "  User:       %d\n", batch.UserID)
	fmt.Fprintf(stdout, "  Source:     %s (%s)\n", batch.SourceID, batch.Source)
	fmt.Fprintf(stdout, "  Dest chat:  %d\n", batch.DestChat)
	fmt.Fprintf(stdout, "  Progress:   %d/%d done, %d failed, %d pending\n", batch.Completed, batch.Total, batch.Failed, batch.Pending)
	fmt.Fprintf(stdout, "  Paused:     %s\n", yesNo(batch.Paused))
	fmt.Fprintf(stdout, "  State:      %s\n", batchState(batch))
	fmt.Fprintf(stdout, "  ETA:        %s\n", formatETA(batch.ETASeconds))
	if batch.Current != nil {
		current := batch.Current
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "  Current message: %d (%s)\n", current.MessageID, current.Status)
		if current.FileName != "" {
			fmt.Fprintf(stdout, "  File:            %s\n", current.FileName)
		}
		fmt.Fprintf(stdout, "  Transfer:        %s\n", formatTransfer(current))
		if current.Retries > 0 {
			fmt.Fprintf(stdout, "  Retries:         %d\n", current.Retries)
		}
		if current.LastError != "" {
			fmt.Fprintf(stdout, "  Last error:      %s\n", current.LastError)
		}
	}
}

func parseID(raw, label string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", label, raw)
	}
	return value, nil
}

func parseMessageRange(raw string) (int64, int64, error) {
	trimmed := strings.TrimSpace(raw)
	first, second, found := strings.Cut(trimmed, "-")
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start <= 0 {
		return 0, 0, fmt.Errorf("invalid message range %q", raw)
	}
	if !found {
		return start, start, nil
	}
	end, err := strconv.ParseInt(strings.TrimSpace(second), 10, 64)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid message range %q", raw)
	}
	return start, end, nil
}
