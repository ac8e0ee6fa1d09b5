package feed

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/db"
	"github.com/mahaj/channel-hub/pkg/model"
)

// Runs against a live cluster when HUB_TEST_SCYLLA=1; SCYLLA_HOSTS overrides localhost:9042.
func newTestCassandra(t *testing.T) *Cassandra {
	if os.Getenv("HUB_TEST_SCYLLA") != "1" {
		t.Skip("HUB_TEST_SCYLLA not set")
	}
	hosts := []string{"localhost:9042"}
	if v := os.Getenv("SCYLLA_HOSTS"); v != "" {
		hosts = strings.Split(v, ",")
	}
	cfg := db.ScyllaConfig{
		Hosts:             hosts,
		Keyspace:          "hub_test",
		ReplicationFactor: 1,
		Timeout:           10 * time.Second,
	}
	logger := logrus.New()
	// DropSchema needs the keyspace, so create it before starting from an empty table.
	require.NoError(t, db.EnsureSchema(cfg, logger))
	require.NoError(t, db.DropSchema(cfg, logger))
	require.NoError(t, db.EnsureSchema(cfg, logger))

	session, err := db.NewSession(cfg, cfg.Keyspace, logger)
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return NewCassandra(session)
}

func TestCassandraFeed(t *testing.T) {
	c := newTestCassandra(t)
	ctx := context.Background()

	k1 := contentkey.NewKey(base, 0)
	k2 := contentkey.NewKey(base, math.MaxInt32)
	k3 := contentkey.NewKey(base, math.MaxUint32)
	appendKeys(t, c, "news", k1, k2, k3)

	err := c.Append(ctx, &model.Item{Channel: "news", Key: k2, Content: []byte("dup")})
	assert.True(t, errors.Is(err, ErrConflict))

	var got []contentkey.Key
	for k, err := range c.Range(ctx, "news", contentkey.ChannelScope()) {
		require.NoError(t, err)
		got = append(got, k)
	}
	require.Len(t, got, 3)
	assert.True(t, got[2].Equal(k3))

	tail, err := c.TailSince(ctx, "news", k1, 10)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.True(t, tail[0].Equal(k2))

	latest, ok, err := c.Latest(ctx, "news")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, latest.Equal(k3))

	item, err := c.Get(ctx, "news", k3)
	require.NoError(t, err)
	assert.Equal(t, []byte(k3.Path()), item.Content)
}
