package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"VoiceChat/internal/archive"
	"VoiceChat/internal/conversation"
)

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var archivePath string
	var collapse bool
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show archived conversations",
		Long: `Show archived conversations.

Without an argument, lists the most recent archived session IDs. With a
session ID, prints that conversation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("archive") {
				cfg.ArchivePath = archivePath
			}
			if cmd.Flags().Changed("collapse") {
				cfg.CollapseRepeats = collapse
			}
			if cfg.ArchivePath == "" {
				return errors.New("no archive configured: set ARCHIVE_PATH or pass --archive")
			}

			arch, err := archive.Open(cfg.ArchivePath, nil)
			if err != nil {
				return err
			}
			defer arch.Close()

			if len(args) == 0 {
				return listSessions(cmd.Context(), arch, cmd.OutOrStdout(), limit)
			}
			return printSession(cmd.Context(), arch, cmd.OutOrStdout(), args[0], cfg.CollapseRepeats)
		},
	}

	cmd.Flags().StringVar(&archivePath, "archive", "", "SQLite archive file (default from ARCHIVE_PATH)")
	cmd.Flags().BoolVar(&collapse, "collapse", false, "Hide repeated speaker labels")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of sessions to list")

	return cmd
}

func listSessions(ctx context.Context, arch *archive.Archive, w io.Writer, limit int) error {
	ids, err := arch.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "no archived sessions")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func printSession(ctx context.Context, arch *archive.Archive, w io.Writer, id string, collapse bool) error {
	rec, err := arch.Load(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Session %s (%s, %s to %s)\n\n", rec.ID, rec.Reason,
		rec.StartTime.Format(time.DateTime), rec.EndTime.Format(time.DateTime))
	for line := range conversation.Lines(rec.Turns, conversation.CollapseRepeats(collapse)) {
		fmt.Fprintln(w, line)
	}
	return nil
}
