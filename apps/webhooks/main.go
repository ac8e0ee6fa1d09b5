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
	"github.com/mahaj/channel-hub/pkg/config"
	"github.com/mahaj/channel-hub/pkg/db"
	"github.com/mahaj/channel-hub/pkg/feed"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

const groupID = "webhooks-service-group"

func main() {
	var cfg config.Webhooks
	config.MustLoad("webhooks", os.Args[1:], &cfg)

	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Webhooks service stopped")
	}
}

func run(cfg config.Webhooks, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcherCfg, err := cfg.DispatcherConfig(logger)
	if err != nil {
		return err
	}

	session, err := db.NewSession(cfg.Scylla, cfg.Scylla.Keyspace, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	store, err := webhook.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer store.Close()

	// One dispatcher runs per deployment. The fixed group keeps its offsets across restarts.
	kafkaCfg := cfg.Kafka
	if kafkaCfg.GroupID == "" {
		kafkaCfg.GroupID = groupID
	}
	events := bus.NewKafka(kafkaCfg, logger)
	defer events.Close()

	supervisor := webhook.NewSupervisor(store, feed.NewCassandra(session), webhook.NewClient(cfg.Dispatcher.DeliveryTimeout), dispatcherCfg)
	consumer := NewConsumer(supervisor, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           consumer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting webhook dispatcher")
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		return events.Subscribe(gctx, consumer.Handle)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
