package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/faithboy007/world-conquest-veterinary-home/circuitbreaker"
	"github.com/faithboy007/world-conquest-veterinary-home/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrProductNotFound = errors.New("product not found")

// Cache is the read-through layer in front of the products table. A miss is
// any error from GetProduct.
type Cache interface {
	GetProduct(ctx context.Context, sku string) (models.Product, error)
	SetProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, sku string) error
}

// Store is the product catalog the checkout triggers are rendered from.
type Store struct {
	db      *sql.DB
	cache   Cache
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewStore(db *sql.DB, cache Cache, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Store {
	return &Store{db: db, cache: cache, breaker: breaker, logger: logger}
}

func (s *Store) List(ctx context.Context) ([]models.Product, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "Catalog.List")
	defer span.End()

	var products []models.Product
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, "SELECT sku, name, price, created_at, updated_at FROM products ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()

		products = products[:0]
		for rows.Next() {
			var p models.Product
			if err := rows.Scan(&p.SKU, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			products = append(products, p)
		}
		return rows.Err()
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	return products, nil
}

func (s *Store) Get(ctx context.Context, sku string) (models.Product, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "Catalog.Get")
	defer span.End()
	span.SetAttributes(attribute.String("product.sku", sku))

	if p, err := s.cache.GetProduct(ctx, sku); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return p, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var p models.Product
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx,
			"SELECT sku, name, price, created_at, updated_at FROM products WHERE sku = $1",
			sku,
		).Scan(&p.SKU, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt)
		// A missing row is an answer, not a failure of the database.
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		return models.Product{}, fmt.Errorf("failed to get product %s: %w", sku, err)
	}
	if p.SKU == "" {
		return models.Product{}, ErrProductNotFound
	}

	if err := s.cache.SetProduct(ctx, p); err != nil {
		s.logger.Warn("Failed to cache product", zap.String("sku", sku), zap.Error(err))
	}
	return p, nil
}

// Upsert creates or replaces a product and evicts its cache entry.
func (s *Store) Upsert(ctx context.Context, req models.UpsertProductRequest) (models.Product, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "Catalog.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("product.sku", req.SKU))

	var p models.Product
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO products (sku, name, price) VALUES ($1, $2, $3)
		ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = CURRENT_TIMESTAMP
		RETURNING sku, name, price, created_at, updated_at`,
		req.SKU, req.Name, req.Price,
	).Scan(&p.SKU, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return models.Product{}, fmt.Errorf("failed to upsert product %s: %w", req.SKU, err)
	}

	if err := s.cache.DeleteProduct(ctx, p.SKU); err != nil {
		s.logger.Warn("Failed to evict cached product", zap.String("sku", p.SKU), zap.Error(err))
	}

	s.logger.Info("Product saved", zap.String("sku", p.SKU), zap.Int64("price", p.Price))
	return p, nil
}
