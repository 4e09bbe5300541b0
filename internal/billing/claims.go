package billing

import (
	"context"
	"time"

	"coincall-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const claimKeyPrefix = "calltx:claim:"

// RedisClaimStore claims transaction ids with SET NX so that only one instance
// processes a delivery at a time. Each store has its own owner token; Release
// never drops another instance's claim.
type RedisClaimStore struct {
	rdb   *redis.Client
	owner string
	ttl   time.Duration
}

func NewRedisClaimStore(rdb *redis.Client, ttl time.Duration) *RedisClaimStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisClaimStore{rdb: rdb, owner: uuid.NewString(), ttl: ttl}
}

func (s *RedisClaimStore) Claim(ctx context.Context, transactionID string) (bool, error) {
	return utils.Claim(ctx, s.rdb, claimKeyPrefix+transactionID, s.owner, s.ttl)
}

func (s *RedisClaimStore) Release(ctx context.Context, transactionID string) error {
	_, err := utils.ReleaseClaim(ctx, s.rdb, claimKeyPrefix+transactionID, s.owner)
	return err
}
