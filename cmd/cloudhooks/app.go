package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/cache"
	"github.com/assetline/cloudhooks/internal/config"
	"github.com/assetline/cloudhooks/internal/db"
	"github.com/assetline/cloudhooks/internal/dbpool"
	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/files"
	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/mail"
	"github.com/assetline/cloudhooks/internal/parse"
	"github.com/assetline/cloudhooks/internal/service"
	"github.com/assetline/cloudhooks/internal/store"
)

// app holds the wired dependencies shared by serve and its readiness checks.
type app struct {
	backend  domain.Backend
	names    domain.NameCache
	registry *hooks.Registry
	worker   *mail.Worker
	checks   map[string]domain.Pinger
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{checks: map[string]domain.Pinger{}}

	backend, err := a.openBackend(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.backend = backend
	a.checks["store"] = backend

	a.names = cache.Nop{}
	if url := cfg.RedisURL.Value(); url != "" {
		client, err := cache.NewRedisClient(ctx, url)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Close() }) //nolint:errcheck // shutdown.

		names := cache.NewNames(client, cfg.NameCacheTTL, log)
		a.names = names
		a.checks["cache"] = names
	}

	fetcher, err := newFetcher(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	mailer, err := newMailer(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.worker = mail.NewWorker(mailer, log, cfg.MailQueueSize)

	a.registry = hooks.NewRegistry(log)
	service.Register(a.registry,
		service.NewAssetHistoryService(backend, log),
		service.NewAssignmentService(backend, a.names, service.AppendMode(cfg.HistoryAppendMode), log),
		service.NewFunctions(service.FunctionDeps{
			Store:    backend,
			Sessions: backend,
			Files:    fetcher,
			Mailer:   mailer,
			Queue:    a.worker,
			Mail:     service.MailSettings{From: cfg.MailFrom, FeedbackTo: cfg.FeedbackTo},
			Log:      log,
		}),
	)

	log.WithFields(logrus.Fields{
		"functions": a.registry.Functions(),
		"triggers":  a.registry.Triggers(),
	}).Info("hooks registered")

	return a, nil
}

func (a *app) openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (domain.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := dbpool.NewPool(ctx, dbpool.Options{URL: cfg.DatabaseURL.Value(), MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := db.Migrate(ctx, pool, log); err != nil {
			return nil, err
		}

		return store.New(pool, log, store.Options{
			SessionSecret: []byte(cfg.SessionSecret.Value()),
			SessionTTL:    cfg.SessionTTL,
		}), nil

	default:
		return parse.New(cfg.ParseServerURL, cfg.ParseAppID,
			parse.WithRESTKey(cfg.ParseRESTKey.Value()),
			parse.WithMasterKey(cfg.ParseMasterKey.Value()),
		), nil
	}
}

func newFetcher(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*files.Fetcher, error) {
	rules := make([]files.Rule, 0, len(cfg.FileRewrites))
	for _, r := range cfg.FileRewrites {
		rules = append(rules, files.Rule{From: r.From, To: r.To})
	}

	opts := files.Options{
		Rules:        rules,
		AllowedHosts: cfg.FileAllowedHosts,
		MaxBytes:     cfg.FileMaxBytes,
		Timeout:      cfg.FileTimeout,
	}

	if files.NeedsS3(rules) {
		client, err := files.NewS3Client(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		opts.S3 = client
	}

	return files.NewFetcher(opts, log), nil
}

func newMailer(cfg *config.Config, log *logrus.Logger) (domain.Mailer, error) {
	switch cfg.MailProvider {
	case config.MailMailgun:
		return mail.NewMailgun(cfg.MailgunAPIBase, cfg.MailgunDomain, cfg.MailgunAPIKey.Value(), log), nil
	case config.MailSMTP:
		return mail.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword.Value()), nil
	case config.MailLog:
		return mail.NewLog(log), nil
	default:
		return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.MailProvider)
	}
}
