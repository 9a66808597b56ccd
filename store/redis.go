package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/reviewguard/models"
)

// KeyPrefix namespaces analysis results in Redis.
const KeyPrefix = "analysis:"

// RedisStore keeps results as JSON strings under "analysis:<key>".
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. ttl of 0 keeps results until deleted.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return KeyPrefix + id
}

// Put serializes result and stores it with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, key string, result *models.AnalysisResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return storageError("encode result", err)
	}
	if err := s.client.Set(ctx, s.key(key), b, s.ttl).Err(); err != nil {
		return storageError("redis set", err)
	}
	return nil
}

// Get loads and decodes the result stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*models.AnalysisResult, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageError("redis get", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, storageError(fmt.Sprintf("decode result %s", key), err)
	}
	return &result, nil
}

// Scan walks keys with SCAN MATCH analysis:*. limit is passed as the COUNT
// hint, so a page may hold more or fewer results; the cursor is Redis's.
func (s *RedisStore) Scan(ctx context.Context, limit int, cursor string) ([]*models.AnalysisResult, string, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	var cur uint64
	if cursor != "" {
		n, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", models.NewAnalysisError(models.ErrCodeInvalidInput, "invalid cursor", err)
		}
		cur = n
	}

	keys, next, err := s.client.Scan(ctx, cur, KeyPrefix+"*", int64(limit)).Result()
	if err != nil {
		return nil, "", storageError("redis scan", err)
	}

	var out []*models.AnalysisResult
	if len(keys) > 0 {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, "", storageError("redis mget", err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				// Expired between SCAN and MGET.
				continue
			}
			var result models.AnalysisResult
			if err := json.Unmarshal([]byte(str), &result); err != nil {
				return nil, "", storageError(fmt.Sprintf("decode %s", keys[i]), err)
			}
			out = append(out, &result)
		}
	}

	nextCursor := ""
	if next != 0 {
		nextCursor = strconv.FormatUint(next, 10)
	}
	return out, nextCursor, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storageError("redis ping", err)
	}
	return nil
}
