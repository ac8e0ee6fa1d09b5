package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/config"
	"github.com/mahaj/channel-hub/pkg/db"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

type schemaConfig struct {
	Scylla   db.ScyllaConfig        `yaml:"scylla"`
	Postgres webhook.PostgresConfig `yaml:"postgres"`
}

func main() {
	var cfg schemaConfig
	config.MustLoad("drop_schema", os.Args[1:], &cfg)
	logger := logrus.New()

	logger.Infof("Dropping keyspace %s...", cfg.Scylla.Keyspace)
	if err := db.DropSchema(cfg.Scylla, logger); err != nil {
		logger.WithError(err).Fatal("Failed to drop feed schema")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := webhook.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to postgres")
	}
	defer store.Close()
	if err := store.DropSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to drop webhook schema")
	}

	logger.Info("Schema dropped successfully.")
}
