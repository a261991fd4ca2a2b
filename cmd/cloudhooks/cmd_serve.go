package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/assetline/cloudhooks/internal/api"
	"github.com/assetline/cloudhooks/internal/config"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, log)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Registry:    a.registry,
		Checks:      a.checks,
		WebhookKey:  cfg.WebhookKey.Value(),
		CORSOrigins: cfg.CORSOrigins,
		Version:     config.Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The worker outlives the servers so that mail queued by in-flight
	// requests is still delivered.
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	g.Go(func() error {
		a.worker.Run(workerCtx)
		return nil
	})

	g.Go(func() error { return listen(srv, log, "webhook") })
	g.Go(func() error { return listen(metricsSrv, log, "metrics") })

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return drainAndStop(shutdownCtx, stopWorker, srv, metricsSrv)
	})

	return g.Wait()
}

// drainAndStop shuts the servers down, waiting for in-flight requests, and
// only then stops the mail worker.
func drainAndStop(ctx context.Context, stopWorker func(), servers ...*http.Server) error {
	errs := make([]error, 0, len(servers))
	for _, srv := range servers {
		errs = append(errs, srv.Shutdown(ctx))
	}

	stopWorker()

	return errors.Join(errs...)
}

func listen(srv *http.Server, log *logrus.Logger, name string) error {
	log.WithFields(logrus.Fields{"addr": srv.Addr, "server": name}).Info("listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
