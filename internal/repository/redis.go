package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chaintrack/tracking-service/internal/config"
	"github.com/chaintrack/tracking-service/internal/model"
)

// Cache holds aggregated delivery views keyed by id and by tracking
// number. Cache failures never fail a request; callers log and move on.
type Cache interface {
	GetDelivery(ctx context.Context, id string) (*model.Delivery, error)
	GetDeliveryByTracking(ctx context.Context, trackingNumber string) (*model.Delivery, error)
	SetDelivery(ctx context.Context, delivery *model.Delivery) error
	Invalidate(ctx context.Context, id, trackingNumber string) error
}

const cacheTTL = 24 * time.Hour

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func deliveryKey(id string) string { return "delivery:" + id }

// Tracking keys are lowercased so lookups stay case-insensitive, matching
// the store.
func trackingKey(trackingNumber string) string {
	return "tracking:" + strings.ToLower(trackingNumber)
}

// SetDelivery caches the view under both keys.
func (c *RedisCache) SetDelivery(ctx context.Context, delivery *model.Delivery) error {
	data, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, deliveryKey(delivery.ID), data, cacheTTL).Err(); err != nil {
		return err
	}
	return c.client.Set(ctx, trackingKey(delivery.TrackingNumber), data, cacheTTL).Err()
}

func (c *RedisCache) GetDelivery(ctx context.Context, id string) (*model.Delivery, error) {
	return c.get(ctx, deliveryKey(id))
}

func (c *RedisCache) GetDeliveryByTracking(ctx context.Context, trackingNumber string) (*model.Delivery, error) {
	return c.get(ctx, trackingKey(trackingNumber))
}

func (c *RedisCache) get(ctx context.Context, key string) (*model.Delivery, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var delivery model.Delivery
	if err := json.Unmarshal(data, &delivery); err != nil {
		return nil, err
	}
	return &delivery, nil
}

// Invalidate drops both keys after a mutation so the next read rebuilds
// the view from the stores.
func (c *RedisCache) Invalidate(ctx context.Context, id, trackingNumber string) error {
	return c.client.Del(ctx, deliveryKey(id), trackingKey(trackingNumber)).Err()
}
