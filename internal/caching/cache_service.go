package caching

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// usageKeyTTL bounds storage growth for per-day counters. Two days covers
// the current bucket plus clock skew; anything older is garbage either way.
const usageKeyTTL = 48 * time.Hour

// CacheService holds the per-account, per-day request counters in Redis.
// The day bucket is part of the key, so crossing midnight simply addresses
// a fresh zero-valued key and no reset job is needed.
type CacheService interface {
	GetUsage(ctx context.Context, accountID uuid.UUID, bucket int64) (int64, error)
	IncrementUsage(ctx context.Context, accountID uuid.UUID, bucket int64) (int64, error)

	// PruneStaleUsage deletes counter keys for buckets older than
	// currentBucket. TTLs already bound growth; this is the opportunistic
	// sweep on top.
	PruneStaleUsage(ctx context.Context, currentBucket int64) (int, error)

	// Generic string operations, used for short-lived lookup caches.
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port as well as bare host:port.
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

// NewRedisCacheServiceWithClient wraps an existing client. Tests use this
// with miniredis.
func NewRedisCacheServiceWithClient(client *redis.Client) CacheService {
	return &redisCacheService{client: client}
}

func usageKey(accountID uuid.UUID, bucket int64) string {
	return fmt.Sprintf("meterbill:usage:%s:%d", accountID.String(), bucket)
}

func (r *redisCacheService) GetUsage(ctx context.Context, accountID uuid.UUID, bucket int64) (int64, error) {
	count, err := r.client.Get(ctx, usageKey(accountID, bucket)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil // first request of this bucket
		}
		return 0, err
	}
	return count, nil
}

func (r *redisCacheService) IncrementUsage(ctx context.Context, accountID uuid.UUID, bucket int64) (int64, error) {
	key := usageKey(accountID, bucket)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// Set expiry on first request of the bucket.
	if count == 1 {
		r.client.Expire(ctx, key, usageKeyTTL)
	}

	return count, nil
}

func (r *redisCacheService) PruneStaleUsage(ctx context.Context, currentBucket int64) (int, error) {
	keys, err := r.client.Keys(ctx, "meterbill:usage:*").Result()
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, key := range keys {
		idx := strings.LastIndex(key, ":")
		if idx < 0 {
			continue
		}
		bucket, err := strconv.ParseInt(key[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		if bucket < currentBucket {
			stale = append(stale, key)
		}
	}

	if len(stale) > 0 {
		if err := r.client.Del(ctx, stale...).Err(); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // cache miss
		}
		return "", err
	}
	return val, nil
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
