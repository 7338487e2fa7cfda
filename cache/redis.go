package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/config"
	"github.com/faithboy007/world-conquest-veterinary-home/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrMiss = errors.New("cache miss")

func InitRedis(ctx context.Context, cfg config.Redis, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr()))
	return rdb, nil
}

func productKey(sku string) string {
	return fmt.Sprintf("product:%s", sku)
}

// ProductCache stores catalog entries as JSON under product:<sku>.
type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProductCache(rdb *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func (c *ProductCache) GetProduct(ctx context.Context, sku string) (models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(sku)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Product{}, ErrMiss
	}
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Product{}, fmt.Errorf("failed to decode cached product: %w", err)
	}
	return p, nil
}

func (c *ProductCache) SetProduct(ctx context.Context, p models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(p.SKU), data, c.ttl).Err()
}

func (c *ProductCache) DeleteProduct(ctx context.Context, sku string) error {
	return c.rdb.Del(ctx, productKey(sku)).Err()
}
