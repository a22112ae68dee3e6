package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "session:"
	cachePrefix   = "querycache:"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(userID, sessionID string) string {
	return sessionPrefix + userID + ":" + sessionID
}

func cacheKey(userID, sessionID string) string {
	return cachePrefix + userID + ":" + sessionID
}

func (s *RedisStore) Put(ctx context.Context, userID, sessionID, value string, ttl time.Duration) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("session: missing user_id or session_id")
	}
	if ttl <= 0 {
		return fmt.Errorf("session: ttl must be positive")
	}
	return s.client.SetEx(ctx, sessionKey(userID, sessionID), value, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(userID, sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID, sessionID string) error {
	return s.client.Del(ctx, sessionKey(userID, sessionID)).Err()
}

// PutCache stores data under the session's cache key with exactly one JSON
// encoding layer. Strings and pre-encoded json.RawMessage values are stored
// as-is so reads never need a second decode.
func (s *RedisStore) PutCache(ctx context.Context, userID, sessionID string, data any, ttl time.Duration) error {
	var payload []byte
	switch v := data.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	case json.RawMessage:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("session: marshal cache value: %w", err)
		}
		payload = b
	}
	return s.client.SetEx(ctx, cacheKey(userID, sessionID), payload, ttl).Err()
}

func (s *RedisStore) GetCache(ctx context.Context, userID, sessionID string) (string, bool, error) {
	val, err := s.client.Get(ctx, cacheKey(userID, sessionID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
