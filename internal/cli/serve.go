package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-reconciler/internal/api"
	"github.com/insightdelivered/statement-reconciler/internal/processor"
	"github.com/insightdelivered/statement-reconciler/internal/store"
	"github.com/insightdelivered/statement-reconciler/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background processing workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := store.NewBoltDB(cfg.Store.Path, store.WithBatchSize(cfg.Pipeline.BatchSize))
			if err != nil {
				return err
			}
			defer db.Close()

			p, err := buildPipeline(ctx, cfg, log)
			if err != nil {
				return err
			}
			proc := processor.New(db, p, log)

			pool := worker.New(proc.Handle,
				worker.WithWorkers(cfg.Worker.Count),
				worker.WithMaxRetries(cfg.Worker.MaxRetries),
				worker.WithLogger(log),
			)
			if err := pool.Start(ctx); err != nil {
				return err
			}
			if n, err := proc.Resume(ctx, pool.Submit); err != nil {
				log.Error().Err(err).Msg("resuming unfinished statements failed")
			} else if n > 0 {
				log.Info().Int("count", n).Msg("requeued unfinished statements")
			}

			if err := os.MkdirAll(cfg.HTTP.UploadDir, 0755); err != nil {
				return fmt.Errorf("creating upload dir: %w", err)
			}
			h := &api.Handler{
				Store:       db,
				Processor:   proc,
				Jobs:        pool,
				UploadDir:   cfg.HTTP.UploadDir,
				BodyLimitMB: cfg.HTTP.BodyLimitMB,
				Log:         log,
			}
			app := h.App()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
				errCh <- app.Listen(cfg.HTTP.Addr)
			}()

			var serveErr error
			select {
			case serveErr = <-errCh:
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			}

			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				log.Error().Err(err).Msg("http shutdown")
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := pool.Stop(stopCtx); err != nil {
				log.Error().Err(err).Msg("worker pool shutdown")
			}
			return serveErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
