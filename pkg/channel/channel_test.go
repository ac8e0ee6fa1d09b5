package channel

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/channel-hub/pkg/model"
)

type registry interface {
	Store
	Presence
}

func testRegistry(t *testing.T, r registry) {
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Create(ctx, &model.Channel{Name: "beta", Created: created}))
	require.NoError(t, r.Create(ctx, &model.Channel{Name: "alpha", Description: "first", Created: created}))
	assert.True(t, errors.Is(r.Create(ctx, &model.Channel{Name: "alpha"}), ErrExists))

	ch, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "first", ch.Description)
	assert.True(t, ch.Created.Equal(created))

	_, err = r.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "beta", list[1].Name)

	require.NoError(t, r.Join(ctx, "alpha", "l2"))
	require.NoError(t, r.Join(ctx, "alpha", "l1"))
	require.NoError(t, r.Join(ctx, "alpha", "l1"))
	listeners, err := r.Listeners(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, listeners)

	require.NoError(t, r.Leave(ctx, "alpha", "l2"))
	listeners, err = r.Listeners(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, listeners)

	require.NoError(t, r.Delete(ctx, "alpha"))
	assert.True(t, errors.Is(r.Delete(ctx, "alpha"), ErrNotFound))
	listeners, err = r.Listeners(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, listeners)

	list, err = r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "beta", list[0].Name)
}

func TestMemory(t *testing.T) {
	testRegistry(t, NewMemory())
}

func TestRedis(t *testing.T) {
	if os.Getenv("HUB_TEST_REDIS") != "1" {
		t.Skip("HUB_TEST_REDIS not set")
	}
	client := NewRedisClient(RedisConfig{Addr: os.Getenv("REDIS_ADDR"), DB: 15})
	defer client.Close()
	require.NoError(t, client.FlushDB(context.Background()).Err())

	testRegistry(t, NewRedis(client))
}
