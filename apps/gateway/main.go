package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/channel"
	"github.com/mahaj/channel-hub/pkg/config"
	"github.com/mahaj/channel-hub/pkg/db"
	"github.com/mahaj/channel-hub/pkg/feed"
	"github.com/mahaj/channel-hub/pkg/hub"
	"github.com/mahaj/channel-hub/pkg/live"
)

func main() {
	var cfg config.Gateway
	config.MustLoad("gateway", os.Args[1:], &cfg)

	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Gateway stopped")
	}
}

func run(cfg config.Gateway, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := db.NewSession(cfg.Scylla, cfg.Scylla.Keyspace, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	rdb := channel.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	channels := channel.NewRedis(rdb)

	// Every gateway needs every event, so each one gets its own consumer group.
	kafkaCfg := cfg.Kafka
	if kafkaCfg.GroupID == "" {
		kafkaCfg.GroupID = "gateway-" + uuid.NewString()
	}
	events := bus.NewKafka(kafkaCfg, logger)
	defer events.Close()

	h := hub.New(feed.NewCassandra(session), channels, nil, events, hub.Config{
		BaseURL: cfg.BaseURL,
		Logger:  logger,
	})

	join, leave := presenceHooks(channels, logger)
	listeners := live.NewRegistry(live.Config{
		QueueSize:     cfg.QueueSize,
		Logger:        logger,
		OnSubscribe:   join,
		OnUnsubscribe: leave,
	})
	defer listeners.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewServer(h, listeners, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Subscribe(gctx, newFanout(listeners, logger).handle)
	})
	g.Go(func() error {
		logger.WithField("addr", cfg.Addr).Info("Gateway service starting")
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
