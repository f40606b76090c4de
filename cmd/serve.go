package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lms/internal/handlers"
	"lms/internal/jobs"
	"lms/internal/logger"
	"lms/internal/tracing"
)

func newServeCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func serve(ctx context.Context, autoMigrate bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	shutdownTracing, err := tracing.Init(ctx, a.cfg.App.Name, a.cfg.Observability.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error(sctx, "shutdown tracer provider", err)
		}
	}()

	if autoMigrate {
		if err := a.migrate(ctx); err != nil {
			return err
		}
	}

	cron := jobs.NewManager(a.db, a.loans, a.cfg.Jobs, a.cfg.Lending)
	if err := cron.Start(ctx); err != nil {
		return err
	}
	defer cron.Stop()

	h := handlers.NewLibraryHandler(a.catalog, a.inventory, a.directory, a.lending)
	srv := &http.Server{
		Addr:         a.cfg.Server.HTTP.Addr,
		Handler:      handlers.NewRouter(a.cfg, a.db, h),
		ReadTimeout:  a.cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.Server.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Starting server", "addr", srv.Addr, "env", a.cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "Shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
