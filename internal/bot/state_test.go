package bot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-bot/internal/clock"
)

func TestMemoryStateStore(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStateStore(clk, 10*time.Minute)
	ctx := context.Background()

	state, err := store.Get(ctx, 11)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, store.Set(ctx, 11, State{Kind: StateAwaitingReply, TicketID: 3}))
	state, err = store.Get(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, &State{Kind: StateAwaitingReply, TicketID: 3}, state)

	require.NoError(t, store.Clear(ctx, 11))
	state, err = store.Get(ctx, 11)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestMemoryStateStoreExpires(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStateStore(clk, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 11, State{Kind: StateAwaitingAdminID}))
	clk.Advance(9 * time.Minute)
	state, err := store.Get(ctx, 11)
	require.NoError(t, err)
	assert.NotNil(t, state)

	clk.Advance(time.Minute)
	state, err = store.Get(ctx, 11)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestRedisStateStore(t *testing.T) {
	addr := os.Getenv("SUPPORTBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SUPPORTBOT_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	store := NewRedisStateStore(client, time.Minute)
	identity := time.Now().UnixNano()
	t.Cleanup(func() { _ = store.Clear(ctx, identity) })

	require.NoError(t, store.Set(ctx, identity, State{Kind: StateAwaitingReply, TicketID: 9}))
	state, err := store.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, &State{Kind: StateAwaitingReply, TicketID: 9}, state)

	ttl, err := client.TTL(ctx, stateKey(identity)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Clear(ctx, identity))
	state, err = store.Get(ctx, identity)
	require.NoError(t, err)
	assert.Nil(t, state)
}
