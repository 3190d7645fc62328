package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/tiered-sub-translator/internal/httpapi"
	"github.com/MimeLyc/tiered-sub-translator/internal/persistence"
	"github.com/MimeLyc/tiered-sub-translator/internal/service"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type worker interface {
	Start()
	Stop()
}

type scheduler interface {
	Schedule(ctx context.Context) error
	Stop()
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr  string
		uiDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job queue and the optional directory watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}

			settings, err := ctx.settings()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			history, err := persistence.NewSQLiteStore(persistence.MemoryDSN)
			if err != nil {
				return service.WrapError(err, service.ErrConfig, "failed to open job history")
			}
			defer history.Close()

			svc := service.New(client, settings, history, service.WithBatchDelay(cfg.Pipeline.BatchDelay))

			serverOpts := []httpapi.Option{
				httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins),
				httpapi.WithUI(uiDir, uiDir != ""),
			}
			var sched scheduler
			if cfg.Watch.Enabled() {
				cronExpr := cfg.Watch.CronExpr
				if override := settings.Get().WatchCron; override != "" {
					cronExpr = override
				}
				watcher := service.NewWatcher(svc, cfg.Watch.Dir, cronExpr)
				serverOpts = append(serverOpts, httpapi.WithWatcher(watcher))
				sched = watcher
			}

			server := httpapi.NewServer(svc, serverOpts...)
			return runWithComponents(cmd.Context(), cfg.HTTP.Addr, svc, sched, server)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from HTTP_ADDR)")
	cmd.Flags().StringVar(&uiDir, "ui-dir", "", "Directory with a built web UI to serve at /")
	return cmd
}

// runWithComponents runs the queue worker, the scheduler and the HTTP server
// until ctx is done or one of them fails. sched may be nil.
func runWithComponents(ctx context.Context, addr string, w worker, sched scheduler, server httpServer) error {
	w.Start()
	defer w.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if sched != nil {
		if err := sched.Schedule(gctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	g.Go(func() error {
		log.Info("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("HTTP server stopped")
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
