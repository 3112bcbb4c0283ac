package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkads-report/config"
)

// newTestRedisStore connects to REDIS_ADDR under a fresh key and removes the
// key when the test ends
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r := NewRedisStore(config.RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		Key:      "vkads:test:" + uuid.NewString(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = r.client.Del(context.Background(), r.key).Err()
		_ = r.Close()
	})
	return r
}

func TestRedisStore_SaveThenLoad(t *testing.T) {
	r := newTestRedisStore(t)
	ctx := context.Background()

	_, err := r.Load(ctx)
	assert.ErrorIs(t, err, ErrNoState)

	want := &State{
		Cookies: []Cookie{{Name: "remixsid", Value: "abc", Domain: ".vk.com", Path: "/", Expires: -1, Secure: true}},
		Origins: []Origin{{Origin: "https://ads.vk.com", LocalStorage: []Item{{Name: "lang", Value: "ru"}}}},
	}
	require.NoError(t, r.Save(ctx, want))

	got, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisStore_EmptyAndCorrupt(t *testing.T) {
	r := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, &State{}))
	_, err := r.Load(ctx)
	assert.ErrorIs(t, err, ErrNoState)

	require.NoError(t, r.client.Set(ctx, r.key, "{not json", 0).Err())
	_, err = r.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoState)
}

func TestRedisStore_Unreachable(t *testing.T) {
	r := NewRedisStore(config.RedisConfig{Addr: "127.0.0.1:1"})
	defer r.Close()
	assert.Equal(t, "vkads:storage_state", r.key)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := r.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoState)
	assert.Contains(t, err.Error(), "redis get vkads:storage_state")
}
