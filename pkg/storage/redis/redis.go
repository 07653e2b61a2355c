// Package redis provides a Redis-backed chunk store for deployments
// where several agent processes share one memory.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/echomem/echomem/config"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/storage"
)

// Store implements memory.ChunkStore using Redis hashes under a
// configurable key prefix.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &storage.UnavailableError{Cause: err}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "echomem:"
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) chunkKey(id string) string {
	return s.prefix + "chunk:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "chunks"
}

// Put implements memory.ChunkStore.
func (s *Store) Put(ctx context.Context, chunks []*mem.MemoryChunk) error {
	pipe := s.client.TxPipeline()
	for _, c := range chunks {
		data, err := json.Marshal(storage.Persistable(c))
		if err != nil {
			return &storage.SerializationError{Operation: "marshal", Cause: err}
		}
		pipe.Set(ctx, s.chunkKey(c.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), c.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Get implements memory.ChunkStore.
func (s *Store) Get(ctx context.Context, id string) (*mem.MemoryChunk, error) {
	data, err := s.client.Get(ctx, s.chunkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, mem.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var chunk mem.MemoryChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return &chunk, nil
}

// GetBatch implements memory.ChunkStore. Missing IDs are skipped.
func (s *Store) GetBatch(ctx context.Context, ids []string) ([]*mem.MemoryChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.chunkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]*mem.MemoryChunk, 0, len(ids))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // key was missing
		}
		var chunk mem.MemoryChunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
		}
		out = append(out, &chunk)
	}
	return out, nil
}

// Delete implements memory.ChunkStore.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.chunkKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// List implements memory.ChunkStore. Order is unspecified.
func (s *Store) List(ctx context.Context) ([]*mem.MemoryChunk, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	return s.GetBatch(ctx, ids)
}

// Count implements memory.ChunkStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return int(n), nil
}

// Close implements memory.ChunkStore.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ mem.ChunkStore = (*Store)(nil)
