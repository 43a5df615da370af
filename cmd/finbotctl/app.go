package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"finbot/internal/amqp"
	"finbot/internal/backend"
	"finbot/internal/cli"
	"finbot/internal/config"
	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/source"
	"finbot/internal/source/api"
	"finbot/internal/storage"
	"finbot/internal/upload"
)

type authClient interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Register(ctx context.Context, name, email, password string) (string, error)
}

type historyStore interface {
	upload.Recorder
	RecentUploads(ctx context.Context, limit int) ([]core.UploadRecord, error)
}

// app holds what the commands share. Fields left nil are filled from the
// environment on first use; tests set them directly.
type app struct {
	out      io.Writer
	logger   *log.Logger
	source   source.Source
	auth     authClient
	tokens   storage.TokenStore
	history  historyStore
	notifier upload.Notifier
	origin   string

	closers []func() error
}

func (a *app) open(ctx context.Context) error {
	if a.source != nil {
		return nil
	}
	cli.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.logger = cli.SetupLogger(cfg.LogLevel, os.Stderr).WithComponent(log.ComponentCLI)
	a.origin = cli.NewOrigin()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, repo.Close)
	a.tokens, a.history = repo, repo

	bcfg, err := backend.FromAppConfig(cfg, repo)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(a.logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, result.Close)
	a.source = result.Source

	a.auth, err = api.New(api.Options{
		BaseURL:      cfg.APIURL,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}

	// Running dashboards reload after a CLI upload when the broker is up.
	if cfg.AMQPEnabled() {
		broker, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, a.origin, a.logger)
		if err != nil {
			a.logger.WarnContext(ctx, "AMQP unavailable, uploads will not be broadcast", log.FieldError, err.Error())
		} else {
			a.notifier = broker
			a.closers = append(a.closers, broker.Close)
		}
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// failure turns an error into the message shown to the user, keeping the
// technical cause in the debug log.
func (a *app) failure(ctx context.Context, err error) error {
	if a.logger != nil {
		a.logger.DebugContext(ctx, "Command failed", log.FieldError, err.Error())
	}
	return errors.New(core.UserMessage(err))
}
