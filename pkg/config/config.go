// Package config loads service configuration from an optional YAML file and the environment.
package config

import (
	"io"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/channel"
	"github.com/mahaj/channel-hub/pkg/db"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
	File   string `yaml:"file" env:"LOG_FILE"`
}

// Gateway serves the write, read and websocket endpoints.
type Gateway struct {
	Addr      string              `yaml:"addr" env:"GATEWAY_ADDR" env-default:":8080"`
	BaseURL   string              `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	QueueSize int                 `yaml:"queue_size" env:"LIVE_QUEUE_SIZE" env-default:"256"`
	Log       Log                 `yaml:"log"`
	Scylla    db.ScyllaConfig     `yaml:"scylla"`
	Redis     channel.RedisConfig `yaml:"redis"`
	Kafka     bus.KafkaConfig     `yaml:"kafka"`
}

// API serves channel and webhook management.
type API struct {
	Addr     string                 `yaml:"addr" env:"API_ADDR" env-default:":8081"`
	BaseURL  string                 `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	Log      Log                    `yaml:"log"`
	Scylla   db.ScyllaConfig        `yaml:"scylla"`
	Redis    channel.RedisConfig    `yaml:"redis"`
	Postgres webhook.PostgresConfig `yaml:"postgres"`
	Kafka    bus.KafkaConfig        `yaml:"kafka"`
}

type Dispatcher struct {
	MaxBatch        int           `yaml:"max_batch" env:"WEBHOOK_MAX_BATCH" env-default:"1"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"WEBHOOK_POLL_INTERVAL" env-default:"1s"`
	SyncInterval    time.Duration `yaml:"sync_interval" env:"WEBHOOK_SYNC_INTERVAL" env-default:"5s"`
	BackoffInitial  time.Duration `yaml:"backoff_initial" env:"WEBHOOK_BACKOFF_INITIAL" env-default:"1s"`
	BackoffFactor   float64       `yaml:"backoff_factor" env:"WEBHOOK_BACKOFF_FACTOR" env-default:"2"`
	BackoffMax      time.Duration `yaml:"backoff_max" env:"WEBHOOK_BACKOFF_MAX" env-default:"1m"`
	BackoffJitter   float64       `yaml:"backoff_jitter" env:"WEBHOOK_BACKOFF_JITTER" env-default:"0"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"WEBHOOK_DELIVERY_TIMEOUT" env-default:"10s"`
	URLChangePolicy string        `yaml:"url_change_policy" env:"WEBHOOK_URL_CHANGE_POLICY" env-default:"retry"`
}

// Webhooks runs the dispatcher.
type Webhooks struct {
	Addr       string                 `yaml:"addr" env:"WEBHOOKS_ADDR" env-default:":8082"`
	BaseURL    string                 `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	Log        Log                    `yaml:"log"`
	Dispatcher Dispatcher             `yaml:"dispatcher"`
	Scylla     db.ScyllaConfig        `yaml:"scylla"`
	Postgres   webhook.PostgresConfig `yaml:"postgres"`
	Kafka      bus.KafkaConfig        `yaml:"kafka"`
}

// DispatcherConfig converts the loaded settings for webhook.NewSupervisor.
func (w *Webhooks) DispatcherConfig(logger logrus.FieldLogger) (webhook.Config, error) {
	policy, err := webhook.ParseURLChangePolicy(w.Dispatcher.URLChangePolicy)
	if err != nil {
		return webhook.Config{}, err
	}
	d := w.Dispatcher
	return webhook.Config{
		BaseURL:         w.BaseURL,
		MaxBatch:        d.MaxBatch,
		PollInterval:    d.PollInterval,
		SyncInterval:    d.SyncInterval,
		Backoff:         webhook.ExponentialBackoff(d.BackoffInitial, d.BackoffFactor, d.BackoffMax, d.BackoffJitter),
		URLChangePolicy: policy,
		Logger:          logger,
	}, nil
}

// Load reads path when it is set, then applies environment overrides.
func Load(path string, cfg interface{}) error {
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return errors.Wrapf(err, "unable to read config %s", path)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return errors.Wrap(err, "unable to read environment")
	}
	return nil
}

// MustLoad parses --config from args and loads cfg, exiting on failure.
func MustLoad(name string, args []string, cfg interface{}) {
	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	path := flags.StringP("config", "c", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	help := flags.Bool("help-env", false, "print the supported environment variables and exit")
	_ = flags.Parse(args)

	if *help {
		usage, _ := cleanenv.GetDescription(cfg, nil)
		_, _ = io.WriteString(os.Stdout, usage+"\n")
		os.Exit(0)
	}
	if err := Load(*path, cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
}

// NewLogger builds the service logger. The returned closer releases the log file, if any.
func NewLogger(cfg Log) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bad log level %q", cfg.Level)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, nil, errors.Errorf("bad log format %q", cfg.Format)
	}

	if cfg.File == "" {
		return logger, nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to open log file")
	}
	logger.SetOutput(f)
	return logger, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
