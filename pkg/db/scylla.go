package db

import (
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Session struct {
	*gocql.Session
}

// ScyllaConfig describes how to reach the Cassandra/ScyllaDB cluster that stores channel feeds.
type ScyllaConfig struct {
	Hosts             []string      `yaml:"hosts" env:"SCYLLA_HOSTS" env-default:"localhost:9042" env-separator:","`
	Keyspace          string        `yaml:"keyspace" env:"SCYLLA_KEYSPACE" env-default:"hub"`
	ReplicationFactor int           `yaml:"replication_factor" env:"SCYLLA_REPLICATION_FACTOR" env-default:"1"`
	Timeout           time.Duration `yaml:"timeout" env:"SCYLLA_TIMEOUT" env-default:"5s"`
}

func NewSession(cfg ScyllaConfig, keyspace string, logger logrus.FieldLogger) (*Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to connect to keyspace %s", keyspace)
	}

	logger.WithField("keyspace", keyspace).Info("connected to ScyllaDB cluster")
	return &Session{Session: session}, nil
}
