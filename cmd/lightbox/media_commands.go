package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lightbox/internal/ingest"
	"lightbox/internal/ipc"
	"lightbox/internal/mediastore"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect and edit the media store",
	}

	mediaCmd.AddCommand(newMediaListCommand(ctx))
	mediaCmd.AddCommand(newMediaAddCommand(ctx))
	mediaCmd.AddCommand(newMediaReadyCommand(ctx))
	mediaCmd.AddCommand(newMediaRemoveCommand(ctx))

	return mediaCmd
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest media records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *mediastore.Store) error {
				records, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					wire := make([]ipc.MediaRecord, 0, len(records))
					for _, rec := range records {
						wire = append(wire, ipc.EncodeRecord(rec))
					}
					return writeJSON(cmd, wire)
				}

				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "Media store is empty")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					bucket := "-"
					if rec.HasBucket {
						bucket = strconv.FormatInt(rec.BucketID, 10)
					}
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						bucket,
						stateLabel(!rec.Pending),
						rec.MimeType,
						rec.DisplayName,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Group", "State", "Type", "Name"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newMediaAddCommand(ctx *commandContext) *cobra.Command {
	var group int64
	var mimeType string
	var pending bool
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a file as a media record",
		Long: `Register a file as a media record.

The capture group defaults to the one the ingester assigns to the file's
directory, and the content type is derived from the file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspect path %q: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			bucket := ingest.GroupKeyFor(filepath.Dir(path))
			if cmd.Flags().Changed("group") {
				bucket = group
			}
			if strings.TrimSpace(mimeType) == "" {
				mimeType = ingest.MimeTypeFor(path)
			}

			return ctx.withStore(func(store *mediastore.Store) error {
				rec, err := store.Insert(cmd.Context(), mediastore.NewRecord{
					BucketID:    &bucket,
					DisplayName: filepath.Base(path),
					Path:        path,
					MimeType:    mimeType,
					Pending:     pending,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added item %d (%s)\n", rec.ID, rec.Locator())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&group, "group", 0, "Capture group id")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Content type (derived from the extension when empty)")
	cmd.Flags().BoolVar(&pending, "pending", false, "Register the item as still processing")
	return cmd
}

func newMediaReadyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ready <id>",
		Short: "Mark a record as finished processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *mediastore.Store) error {
				if err := store.MarkReady(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d marked ready\n", id)
				return nil
			})
		},
	}
}

func newMediaRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a record without touching its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *mediastore.Store) error {
				removed, err := store.Delete(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("item %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d removed\n", id)
				return nil
			})
		},
	}
}
