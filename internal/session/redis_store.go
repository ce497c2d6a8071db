package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gmvreport/gmvdash/internal/crypto"
)

// RedisStore shares one token between dashboard instances.
type RedisStore struct {
	rdb    *redis.Client
	key    string
	cipher *crypto.Cipher
	now    func() time.Time
}

// OpenRedisStore connects and pings. cipher may be nil.
func OpenRedisStore(ctx context.Context, addr, key string, cipher *crypto.Cipher) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("empty redis addr")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisStore(rdb, key, cipher), nil
}

func NewRedisStore(rdb *redis.Client, key string, cipher *crypto.Cipher) *RedisStore {
	return &RedisStore{rdb: rdb, key: key, cipher: cipher, now: time.Now}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	raw, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading token from redis: %w", err)
	}
	token, err := s.cipher.Open(raw)
	if err != nil {
		return "", fmt.Errorf("loading token from redis: %w", err)
	}
	return token, nil
}

// Save stores the token. A JWT's exp claim becomes the key's TTL.
func (s *RedisStore) Save(ctx context.Context, token string) error {
	sealed, err := s.cipher.Seal(token)
	if err != nil {
		return fmt.Errorf("sealing token: %w", err)
	}
	var ttl time.Duration
	if exp, ok := Expiry(token); ok {
		ttl = exp.Sub(s.now())
		if ttl <= 0 {
			return errors.New("refusing to store an expired token")
		}
	}
	if err := s.rdb.Set(ctx, s.key, sealed, ttl).Err(); err != nil {
		return fmt.Errorf("saving token to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clearing token in redis: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
