package idempotency

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestClaimCompleteReplay(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	existing, err := store.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, err = store.Claim(ctx, "u1", "k1")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, store.Complete(ctx, "u1", "k1", "ORD-1"))

	existing, err = store.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", existing)
}

func TestKeysAreScopedPerUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "u1", "same")
	require.NoError(t, err)

	existing, err := store.Claim(ctx, "u2", "same")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestReleaseOnlyDropsPendingKeys(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "u1", "k1"))
	assert.False(t, mr.Exists(redisKey("u1", "k1")))

	_, err = store.Claim(ctx, "u1", "k2")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "u1", "k2", "ORD-2"))
	require.NoError(t, store.Release(ctx, "u1", "k2"))

	value, err := mr.Get(redisKey("u1", "k2"))
	require.NoError(t, err)
	assert.Equal(t, "ORD-2", value)
}

func TestClaimExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	existing, err := store.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestClaimRejectsLongKey(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Claim(context.Background(), "u1", strings.Repeat("x", maxKeyLength+1))
	assert.ErrorIs(t, err, ErrKeyTooLong)
}

func TestKeyHeader(t *testing.T) {
	req := httptest.NewRequest("POST", "/orders", nil)
	req.Header.Set(Header, "  abc  ")
	assert.Equal(t, "abc", Key(req))
}
