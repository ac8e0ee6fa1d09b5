package db

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Items are clustered by (ts, seq) so that range scans and tail reads come back in key order.
const createItemsTable = `CREATE TABLE IF NOT EXISTS items (
	channel text,
	ts timestamp,
	seq bigint,
	content blob,
	content_type text,
	created timestamp,
	PRIMARY KEY (channel, ts, seq)
) WITH CLUSTERING ORDER BY (ts ASC, seq ASC)`

// EnsureSchema creates the keyspace and the items table if they do not exist yet. Schema changes
// beyond that belong to a migration tool.
func EnsureSchema(cfg ScyllaConfig, logger logrus.FieldLogger) error {
	sysSession, err := NewSession(cfg, "system", logger)
	if err != nil {
		return err
	}
	defer sysSession.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : %d }`,
		cfg.Keyspace, cfg.ReplicationFactor)
	if err := sysSession.Query(stmt).Exec(); err != nil {
		return errors.Wrap(err, "unable to create keyspace")
	}

	session, err := NewSession(cfg, cfg.Keyspace, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Query(createItemsTable).Exec(); err != nil {
		return errors.Wrap(err, "unable to create items table")
	}
	logger.WithField("keyspace", cfg.Keyspace).Info("items schema ready")
	return nil
}

// DropSchema removes the items table.
func DropSchema(cfg ScyllaConfig, logger logrus.FieldLogger) error {
	session, err := NewSession(cfg, cfg.Keyspace, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Query("DROP TABLE IF EXISTS items").Exec(); err != nil {
		return errors.Wrap(err, "unable to drop items table")
	}
	return nil
}
