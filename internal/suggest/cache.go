package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/repository"
)

// Cache stores suggestion sets by header signature.
type Cache interface {
	Get(ctx context.Context, signature string) ([]domain.Suggestion, bool, error)
	Put(ctx context.Context, signature string, suggestions []domain.Suggestion) error
}

// StoreCache keeps suggestions in the metadata store.
type StoreCache struct {
	repo repository.SuggestionCacheRepository
}

func NewStoreCache(repo repository.SuggestionCacheRepository) *StoreCache {
	return &StoreCache{repo: repo}
}

func (c *StoreCache) Get(ctx context.Context, signature string) ([]domain.Suggestion, bool, error) {
	return c.repo.GetSuggestions(ctx, signature)
}

func (c *StoreCache) Put(ctx context.Context, signature string, suggestions []domain.Suggestion) error {
	return c.repo.PutSuggestions(ctx, signature, suggestions)
}

// RedisCache keeps suggestions in Redis with a TTL.
type RedisCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	if opts.Addr == "" {
		return nil, errors.New("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: opts.TTL, prefix: "vendorflow:suggest:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, signature string) ([]domain.Suggestion, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+signature).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var suggestions []domain.Suggestion
	if err := json.Unmarshal(raw, &suggestions); err != nil {
		return nil, false, fmt.Errorf("decode cached suggestions: %w", err)
	}
	return suggestions, true, nil
}

func (c *RedisCache) Put(ctx context.Context, signature string, suggestions []domain.Suggestion) error {
	raw, err := json.Marshal(suggestions)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+signature, raw, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
