package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/faithboy007/world-conquest-veterinary-home/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const createProductsTable = `
	CREATE TABLE IF NOT EXISTS products (
		sku VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price BIGINT NOT NULL CHECK (price > 0),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

// InitDB opens the catalog database and makes sure the products table exists.
func InitDB(ctx context.Context, cfg config.Database, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createProductsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}
