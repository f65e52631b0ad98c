package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"VoiceChat/internal/archive"
	"VoiceChat/internal/config"
	"VoiceChat/internal/server"
	"VoiceChat/internal/session"
)

const (
	reapInterval    = time.Minute
	shutdownTimeout = 10 * time.Second
	archiveTimeout  = 5 * time.Second
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	var archivePath string
	var collapse bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the voice chat page",
		Long: `Serve the voice chat page and its API.

Each browser gets its own session, kept in memory until it is ended, evicted
or left idle. Set --archive (or ARCHIVE_PATH) to keep a SQLite copy of every
ended conversation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("archive") {
				cfg.ArchivePath = archivePath
			}
			if cmd.Flags().Changed("collapse") {
				cfg.CollapseRepeats = collapse
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from VOICECHAT_ADDR)")
	cmd.Flags().StringVar(&archivePath, "archive", "", "SQLite file for ended sessions (default from ARCHIVE_PATH)")
	cmd.Flags().BoolVar(&collapse, "collapse", false, "Hide repeated speaker labels in the history")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var onEnd session.EndFunc
	if cfg.ArchivePath != "" {
		arch, err := archive.Open(cfg.ArchivePath, a.logger)
		if err != nil {
			return err
		}
		defer arch.Close()
		onEnd = archiveOnEnd(arch, a.logger)
	}

	store, err := session.NewStore(session.StoreOptions{
		MaxSessions: cfg.MaxSessions,
		IdleTimeout: cfg.SessionIdleTimeout,
		OnEnd:       onEnd,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(server.Options{
		Store:           store,
		Bot:             a.bot,
		Logger:          a.logger,
		CollapseRepeats: cfg.CollapseRepeats,
		MaxAudioBytes:   cfg.MaxAudioBytes,
		Release:         !cfg.Debug,
	})

	fmt.Fprintf(os.Stderr, "voicechat listening on http://%s\n", cfg.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Addr, shutdownTimeout)
	})
	g.Go(func() error {
		return store.RunReaper(gctx, reapInterval)
	})
	return g.Wait()
}

// archiveOnEnd saves every discarded session that said something
func archiveOnEnd(arch *archive.Archive, logger *slog.Logger) session.EndFunc {
	return func(st *session.State, reason session.EndReason) {
		if st.Log.Len() == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		err := arch.Save(ctx, archive.Record{
			ID:        st.ID,
			StartTime: st.StartTime,
			EndTime:   time.Now(),
			Reason:    string(reason),
			Turns:     st.Log.Turns(),
		})
		if err != nil {
			logger.Error("failed to archive session", "session_id", st.ID, "error", err)
		}
	}
}
