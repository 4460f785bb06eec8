package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/byBit-ovo/coral_lineage/lineage"
)

const codeKeyPrefix = "coral_lineage:code:"

// Cache is a string key/value cache with expiry.
type Cache interface {
	// Get reports ok=false with a nil error on a miss.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedCodeStore serves code records from cache before asking next. Cache
// failures are logged and never fail the lookup.
type CachedCodeStore struct {
	next  lineage.CodeStore
	cache Cache
	ttl   time.Duration
}

func NewCachedCodeStore(next lineage.CodeStore, cache Cache, ttl time.Duration) *CachedCodeStore {
	return &CachedCodeStore{next: next, cache: cache, ttl: ttl}
}

func (s *CachedCodeStore) GetCode(ctx context.Context, id string) (*lineage.CodeRecord, error) {
	key := codeKeyPrefix + id
	val, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("code cache get failed", zap.String("code_id", id), zap.Error(err))
	}
	if ok {
		record := &lineage.CodeRecord{}
		if err := json.Unmarshal([]byte(val), record); err == nil {
			return record, nil
		}
		log.Warn("code cache entry corrupt", zap.String("code_id", id))
	}

	record, err := s.next.GetCode(ctx, id)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(record)
	if err == nil {
		err = s.cache.Set(ctx, key, string(body), s.ttl)
	}
	if err != nil {
		log.Warn("code cache set failed", zap.String("code_id", id), zap.Error(err))
	}
	return record, nil
}
