package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lightbox/internal/daemon"
	"lightbox/internal/ipc"
	"lightbox/internal/items"
	"lightbox/internal/mediastore"
	"lightbox/internal/review"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Hide an item from every open review",
		Long: `Hide an item from every open review.

With --purge the record and its file are removed as well. Without a running
daemon only --purge has an effect, since nothing else is showing the item.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			client, err := ctx.dial(cmd.Context())
			if err != nil {
				if !ipc.IsDaemonDown(err) {
					return wrapDialError(err, ctx.socketPath())
				}
				if !purge {
					return errors.New("daemon is not running; use --purge to remove the record")
				}
				return ctx.withStore(func(store *mediastore.Store) error {
					removed, err := daemon.PurgeMedia(cmd.Context(), store, ctx.logger(), id)
					if err != nil {
						return err
					}
					printDeleteResult(out, id, purge, removed)
					return nil
				})
			}
			defer client.Close()

			resp, err := client.Delete(id, purge)
			if err != nil {
				return err
			}
			printDeleteResult(out, id, purge, resp.Removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Also remove the record and its file")
	return cmd
}

func printDeleteResult(out io.Writer, id int64, purge, removed bool) {
	switch {
	case !purge:
		fmt.Fprintf(out, "Item %d hidden from open reviews\n", id)
	case removed:
		fmt.Fprintf(out, "Item %d removed\n", id)
	default:
		fmt.Fprintf(out, "Item %d not found\n", id)
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <token>",
		Short: "Resume the capture action identified by token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := items.ActionToken(strings.TrimSpace(args[0]))
			if token == "" {
				return errors.New("capture token is required")
			}
			out := cmd.OutOrStdout()

			client, err := ctx.dial(cmd.Context())
			if err != nil {
				if !ipc.IsDaemonDown(err) {
					return wrapDialError(err, ctx.socketPath())
				}
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				launcher := review.NewCommandLauncher(cfg.Capture.Command, ctx.logger())
				if err := launcher.Launch(cmd.Context(), token); err != nil {
					return err
				}
				fmt.Fprintln(out, "Capture resumed")
				return nil
			}
			defer client.Close()

			if _, err := client.ResumeCapture(string(token)); err != nil {
				return err
			}
			fmt.Fprintln(out, "Capture resumed")
			return nil
		},
	}
}

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}
