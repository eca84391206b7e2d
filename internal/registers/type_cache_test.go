package registers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *int32, refs []TypeRef) TypeLoader {
	return func(context.Context) ([]TypeRef, error) {
		atomic.AddInt32(calls, 1)
		return refs, nil
	}
}

func TestTypeCacheLocalOnly(t *testing.T) {
	cache := NewTypeCache(nil, time.Minute)
	refs := []TypeRef{{ID: uuid.New(), Type: "Caisse principale", Prefix: "CP", IsDefault: true}}
	var calls int32

	for i := 0; i < 3; i++ {
		got, err := cache.Types(context.Background(), countingLoader(&calls, refs))
		require.NoError(t, err)
		require.Equal(t, refs, got)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, cache.Invalidate(context.Background()))
	_, err := cache.Types(context.Background(), countingLoader(&calls, refs))
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTypeCacheSharesRedisTier(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	refs := []TypeRef{
		{ID: uuid.New(), Type: "Caisse principale", Prefix: "CP", IsDefault: true},
		{ID: uuid.New(), Type: "Caisse secondaire", Prefix: "CS"},
	}
	var calls int32

	first := NewTypeCache(rdb, time.Minute)
	_, err := first.Types(context.Background(), countingLoader(&calls, refs))
	require.NoError(t, err)
	require.True(t, srv.Exists(typeCacheKey))

	// A second process-local cache is filled from Redis without reloading.
	second := NewTypeCache(rdb, time.Minute)
	got, err := second.Types(context.Background(), countingLoader(&calls, refs))
	require.NoError(t, err)
	require.Equal(t, refs, got)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, second.Invalidate(context.Background()))
	require.False(t, srv.Exists(typeCacheKey))
}

func TestTypeCacheLoaderError(t *testing.T) {
	cache := NewTypeCache(nil, time.Minute)
	boom := errors.New("db down")
	_, err := cache.Types(context.Background(), func(context.Context) ([]TypeRef, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	_, err = cache.Types(context.Background(), nil)
	require.Error(t, err)
}
