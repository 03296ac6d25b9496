package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/linkpulse/internal/store"
)

const redisPrefix = "linkpulse:"

// Redis shares the recent listing between replicas. Failures degrade to a
// cache miss; the store stays authoritative.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects and pings so startup fails fast on a bad address.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

func (r *Redis) Get(ctx context.Context, limit, offset int) ([]store.Link, bool) {
	raw, err := r.client.Get(ctx, redisPrefix+key(limit, offset)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("recent cache get")
		}
		return nil, false
	}
	var links []store.Link
	if err := json.Unmarshal(raw, &links); err != nil {
		log.Warn().Err(err).Msg("recent cache decode")
		return nil, false
	}
	return links, true
}

func (r *Redis) Set(ctx context.Context, limit, offset int, links []store.Link) {
	if r.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(links)
	if err != nil {
		log.Warn().Err(err).Msg("recent cache encode")
		return
	}
	if err := r.client.Set(ctx, redisPrefix+key(limit, offset), raw, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("recent cache set")
	}
}

func (r *Redis) Invalidate(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, redisPrefix+"recent:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("recent cache scan")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Msg("recent cache invalidate")
	}
}
