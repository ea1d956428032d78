package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"findixi/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "findixi:"

type CacheService interface {
	// Order status
	GetOrderStatus(ctx context.Context, linkToken string) (*models.Order, error)
	SetOrderStatus(ctx context.Context, linkToken string, order *models.Order, ttl time.Duration) error
	DeleteOrderStatus(ctx context.Context, linkToken string) error

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port as well as host:port
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsedAddr = strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	} else {
		log.Printf("DEBUG: Redis connected at %s", parsedAddr)
	}
	return &redisCacheService{client: client}
}

// NewCacheServiceFromClient wraps an existing client.
func NewCacheServiceFromClient(client *redis.Client) CacheService {
	return &redisCacheService{client: client}
}

func orderStatusKey(linkToken string) string {
	return fmt.Sprintf("%sorder-status:%s", keyPrefix, linkToken)
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", keyPrefix, key)
}

// GetOrderStatus returns nil, nil on a cache miss.
func (r *redisCacheService) GetOrderStatus(ctx context.Context, linkToken string) (*models.Order, error) {
	data, err := r.client.Get(ctx, orderStatusKey(linkToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshal order status failed: %w", err)
	}
	return &order, nil
}

func (r *redisCacheService) SetOrderStatus(ctx context.Context, linkToken string, order *models.Order, ttl time.Duration) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order status failed: %w", err)
	}
	return r.client.Set(ctx, orderStatusKey(linkToken), data, ttl).Err()
}

func (r *redisCacheService) DeleteOrderStatus(ctx context.Context, linkToken string) error {
	return r.client.Del(ctx, orderStatusKey(linkToken)).Err()
}

// IsRateLimited counts one hit for key and reports whether it went over
// limit within window.
func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := rateLimitKey(key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return false, err
	}

	// Window starts on the first hit
	if count == 1 {
		if err := r.client.Expire(ctx, cacheKey, window).Err(); err != nil {
			log.Printf("WARN: failed to set rate limit window for %s: %v", cacheKey, err)
		}
	}
	return count > int64(limit), nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCacheService) Close() error {
	return r.client.Close()
}
