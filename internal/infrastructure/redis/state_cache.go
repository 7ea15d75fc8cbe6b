package redis

import (
	"bidding-service/internal/domain"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStateCache keeps a fast-path copy of each auction's lifecycle state so
// the API can answer reads without hitting MySQL. The store remains the source
// of truth; a cache miss falls back to open.
type RedisStateCache struct {
	client *redis.Client
}

func NewRedisStateCache(client *redis.Client) *RedisStateCache {
	return &RedisStateCache{client: client}
}

func (r *RedisStateCache) SetAuctionState(ctx context.Context, auctionID string, state domain.AuctionState) error {
	key := fmt.Sprintf("auction:%s:state", auctionID)
	return r.client.Set(ctx, key, int(state), 24*time.Hour).Err()
}

func (r *RedisStateCache) GetAuctionState(ctx context.Context, auctionID string) (domain.AuctionState, error) {
	key := fmt.Sprintf("auction:%s:state", auctionID)

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return domain.AuctionOpen, nil
		}
		return domain.AuctionOpen, err
	}

	state, err := strconv.Atoi(result)
	if err != nil {
		return domain.AuctionOpen, err
	}

	return domain.AuctionState(state), nil
}
