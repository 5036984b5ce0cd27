package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
	"github.com/Benseddik-Fethi/petcare-app/internal/repository"
)

const codeKeyPrefix = "oauth:code:"

// RedisCodeStore implements CodeStore backed by Redis. Codes expire through
// the key TTL; single use comes from the atomic GETDEL on consume.
type RedisCodeStore struct {
	client redis.UniversalClient
}

var _ repository.CodeStore = (*RedisCodeStore)(nil)

// NewRedisCodeStore constructs a Redis-backed authorization-code store.
func NewRedisCodeStore(client redis.UniversalClient) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

// Save stores the encoded code payload with TTL.
func (s *RedisCodeStore) Save(ctx context.Context, code string, data domain.AuthorizationCode, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	if err := s.client.Set(ctx, codeKeyPrefix+code, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist code: %w", err)
	}
	return nil
}

// Consume removes and returns the code payload. It returns nil when the code
// is unknown, already consumed, or expired.
func (s *RedisCodeStore) Consume(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	bytes, err := s.client.GetDel(ctx, codeKeyPrefix+code).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}
	var data domain.AuthorizationCode
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	return &data, nil
}
