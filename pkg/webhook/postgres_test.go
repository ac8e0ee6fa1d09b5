package webhook

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

// Runs against a live database when HUB_TEST_POSTGRES=1 and the POSTGRES_* variables point at it.
func newTestPostgres(t *testing.T) *Postgres {
	if os.Getenv("HUB_TEST_POSTGRES") != "1" {
		t.Skip("HUB_TEST_POSTGRES not set")
	}
	cfg := PostgresConfig{
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     envOr("POSTGRES_PORT", "5432"),
		Username: envOr("POSTGRES_USER", "hub"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: envOr("POSTGRES_DB", "hub"),
		SSLMode:  "disable",
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, p.DropSchema(ctx))
	require.NoError(t, p.EnsureSchema(ctx))
	t.Cleanup(func() {
		_ = p.DropSchema(ctx)
		_ = p.Close()
	})
	return p
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestPostgresStore(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	require.NoError(t, p.Create(ctx, &Webhook{Name: "hook", Channel: "x", CallbackURL: "http://cb"}))
	assert.True(t, errors.Is(p.Create(ctx, &Webhook{Name: "hook", Channel: "x", CallbackURL: "http://cb"}), ErrExists))

	wh, err := p.Get(ctx, "hook")
	require.NoError(t, err)
	assert.True(t, wh.Cursor.IsZero())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k1, k2 := contentkey.NewKey(base, 0), contentkey.NewKey(base, 1)
	moved, err := p.AdvanceCursor(ctx, "hook", k2)
	require.NoError(t, err)
	assert.True(t, moved)
	moved, err = p.AdvanceCursor(ctx, "hook", k1)
	require.NoError(t, err)
	assert.False(t, moved)

	paused := true
	wh, err = p.Update(ctx, "hook", Update{Paused: &paused})
	require.NoError(t, err)
	assert.True(t, wh.Paused)
	assert.True(t, wh.Cursor.Equal(k2))

	list, err := p.List(ctx, "x")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, p.Delete(ctx, "hook"))
	_, err = p.AdvanceCursor(ctx, "hook", k2)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresCursorKeepsFullSequenceRange(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, p.Create(ctx, &Webhook{Name: "hook", Channel: "x", CallbackURL: "http://cb"}))

	k := contentkey.NewKey(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), math.MaxUint32)
	ok, err := p.AdvanceCursor(ctx, "hook", k)
	require.NoError(t, err)
	assert.True(t, ok)

	wh, err := p.Get(ctx, "hook")
	require.NoError(t, err)
	assert.True(t, wh.Cursor.Equal(k))
}
