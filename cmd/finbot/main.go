package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finbot/internal/amqp"
	"finbot/internal/backend"
	"finbot/internal/cache"
	"finbot/internal/cli"
	"finbot/internal/config"
	apphttp "finbot/internal/http"
	"finbot/internal/log"
	"finbot/internal/middleware/ratelimit"
	"finbot/internal/reload"
	"finbot/internal/storage"
	"finbot/internal/upload"
	"finbot/internal/view"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), nil).WithComponent(log.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	if err := run(ctx, cfg, repo, logger); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, repo *storage.SQLiteRepository, logger *log.Logger) error {
	bcfg, err := backend.FromAppConfig(cfg, repo)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer result.Close()

	origin := cli.NewOrigin()
	sig := &reload.Signal{}
	v := view.New(result.Source, logger)

	uploadOpts := upload.Options{Recorder: repo, Logger: logger, Origin: origin}
	var broker *amqp.Client
	if cfg.AMQPEnabled() {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, origin, logger)
		if err != nil {
			return err
		}
		defer broker.Close()
		uploadOpts.Notifier = broker
		logger.Info("AMQP broadcast enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP broadcast disabled - no AMQP_URL provided")
	}
	trigger := upload.New(result.Source, sig, uploadOpts)

	charts := cache.NewChartCache(32, cfg.ChartCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(charts)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Logger:            logger,
	})

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:    ":" + cfg.Port,
		View:    v,
		Trigger: trigger,
		History: repo,
		Charts:  charts,
		Limiter: limiter,
		Ready:   []apphttp.Pinger{repo},
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(v.Watch(ctx, sig)) })
	g.Go(func() error { return ignoreCanceled(caches.Run(ctx, time.Minute)) })
	g.Go(func() error { return ignoreCanceled(limiter.Run(ctx)) })
	if broker != nil {
		g.Go(func() error {
			return ignoreCanceled(broker.ConsumeStatementUploaded(ctx, amqp.ReloadBridge(sig, repo, logger)))
		})
	}
	g.Go(func() error {
		st := v.Reload(ctx, sig.Value())
		logger.Info("Initial fetch finished", "phase", st.Phase.String(), log.FieldCount, len(st.Snapshot))
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting finbot server", log.FieldOperation, log.OpStartup, "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
