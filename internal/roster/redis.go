package roster

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the cache in a redis hash so several stations at the
// same venue can share one roster and survive restarts. Still a cache,
// not a system of record.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// NewRedisStore builds a store over the given client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "checkin:roster"
	}
	return &RedisStore{client: client, key: key}
}

// Healthy verifies redis connectivity.
func (s *RedisStore) Healthy(ctx context.Context) bool {
	if s == nil || s.client == nil {
		return false
	}
	return s.client.Ping(ctx).Err() == nil
}

// ReplaceAll swaps the full hash contents atomically via a pipeline.
func (s *RedisStore) ReplaceAll(ctx context.Context, entries []Entry) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, s.key, e.ID, raw)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Search returns entries whose DNI contains dniQuery.
func (s *RedisStore) Search(ctx context.Context, dniQuery string) ([]Entry, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, raw := range all {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if dniQuery == "" || strings.Contains(e.DNI, dniQuery) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindByDNI returns the entry with an exact DNI match, or nil.
func (s *RedisStore) FindByDNI(ctx context.Context, dni string) (*Entry, error) {
	entries, err := s.Search(ctx, dni)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.DNI == dni {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

// UpdateDNI rewrites the DNI of a cached entry.
func (s *RedisStore) UpdateDNI(ctx context.Context, id, dni string) error {
	raw, err := s.client.HGet(ctx, s.key, id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return err
	}
	e.DNI = dni
	updated, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, id, updated).Err()
}
