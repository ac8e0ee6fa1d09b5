package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/channel"
	"github.com/mahaj/channel-hub/pkg/config"
	"github.com/mahaj/channel-hub/pkg/db"
	"github.com/mahaj/channel-hub/pkg/feed"
	"github.com/mahaj/channel-hub/pkg/hub"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

func main() {
	var cfg config.API
	config.MustLoad("api", os.Args[1:], &cfg)

	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("API stopped")
	}
}

func run(cfg config.API, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := db.NewSession(cfg.Scylla, cfg.Scylla.Keyspace, logger)
	if err != nil {
		return err
	}
	defer session.Close()
	items := feed.NewCassandra(session)

	webhooks, err := webhook.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer webhooks.Close()

	rdb := channel.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	channels := channel.NewRedis(rdb)

	events := bus.NewKafka(cfg.Kafka, logger)
	defer events.Close()

	h := hub.New(items, channels, webhooks, events, hub.Config{
		BaseURL: cfg.BaseURL,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           New(h, webhooks, channels, items, events, cfg.BaseURL, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.Addr).Info("API service starting")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
