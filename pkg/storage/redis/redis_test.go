package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/echomem/echomem/config"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/storage"
)

// Tests require a running Redis instance. Set REDIS_ADDR to enable,
// e.g. REDIS_ADDR=localhost:6379 go test ./pkg/storage/redis/
func newTestStore(t *testing.T) mem.ChunkStore {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis store tests")
	}

	// Unique prefix per test run so concurrent runs do not collide.
	cfg := config.RedisConfig{
		Addr:      addr,
		KeyPrefix: "echomem_test:" + uuid.NewString()[:8] + ":",
	}
	store, err := NewStore(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		ids, err := store.client.SMembers(ctx, store.indexKey()).Result()
		if err == nil {
			_ = store.Delete(ctx, ids)
		}
		_ = store.client.Del(ctx, store.indexKey()).Err()
		_ = store.Close()
	})
	return store
}

func TestRedisStore(t *testing.T) {
	suite := &storage.ChunkStoreTestSuite{
		NewStore: func(t *testing.T) mem.ChunkStore {
			return newTestStore(t)
		},
	}
	suite.RunAllTests(t)
}

func TestRedisStoreUnavailable(t *testing.T) {
	// Port 1 should refuse connections immediately.
	_, err := NewStore(context.Background(), config.RedisConfig{Addr: "localhost:1"})
	require.Error(t, err)

	var unavail *storage.UnavailableError
	require.ErrorAs(t, err, &unavail)
}
