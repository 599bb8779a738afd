package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoundCache é a camada quente de rounds no Redis, na frente do store
// durável. TTL curto: o Postgres continua sendo a fonte de verdade.
type RoundCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRoundCache(c *redis.Client, ttl time.Duration) *RoundCache {
	return &RoundCache{Client: c, TTL: ttl}
}

func key(round uint64) string { return fmt.Sprintf("beacon:round:%d", round) }

func (c *RoundCache) Get(ctx context.Context, round uint64) (*Round, bool, error) {
	b, err := c.Client.Get(ctx, key(round)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var r Round
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (c *RoundCache) Set(ctx context.Context, r Round) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key(r.Round), b, c.TTL).Err()
}
