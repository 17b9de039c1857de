package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

const createProductsTable = `
CREATE TABLE IF NOT EXISTS products (
	product_url       TEXT PRIMARY KEY,
	product_name      TEXT NOT NULL DEFAULT '',
	price             NUMERIC,
	currency          TEXT NOT NULL DEFAULT '',
	sku               TEXT NOT NULL DEFAULT '',
	size              TEXT NOT NULL DEFAULT '',
	color             TEXT NOT NULL DEFAULT '',
	size_list         TEXT[] NOT NULL DEFAULT '{}',
	color_list        TEXT[] NOT NULL DEFAULT '{}',
	description       TEXT NOT NULL DEFAULT '',
	care_instructions TEXT NOT NULL DEFAULT '',
	image_urls        TEXT[] NOT NULL DEFAULT '{}',
	product_details   JSONB NOT NULL DEFAULT '{}',
	scraped_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertProduct = `
INSERT INTO products (
	product_url, product_name, price, currency, sku, size, color,
	size_list, color_list, description, care_instructions, image_urls,
	product_details, scraped_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (product_url) DO UPDATE SET
	product_name = EXCLUDED.product_name,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	sku = EXCLUDED.sku,
	size = EXCLUDED.size,
	color = EXCLUDED.color,
	size_list = EXCLUDED.size_list,
	color_list = EXCLUDED.color_list,
	description = EXCLUDED.description,
	care_instructions = EXCLUDED.care_instructions,
	image_urls = EXCLUDED.image_urls,
	product_details = EXCLUDED.product_details,
	scraped_at = EXCLUDED.scraped_at`

// pgConn is the subset of *pgxpool.Pool the writer uses.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// PostgresWriter upserts products into a products table keyed by URL.
type PostgresWriter struct {
	ctx     context.Context
	conn    pgConn
	mu      sync.Mutex
	written int
	now     func() time.Time
}

// NewPostgresWriter connects to dsn and ensures the products table exists.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newPostgresWriter(ctx, pool)
}

func newPostgresWriter(ctx context.Context, conn pgConn) (*PostgresWriter, error) {
	if _, err := conn.Exec(ctx, createProductsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}
	return &PostgresWriter{ctx: ctx, conn: conn, now: time.Now}, nil
}

// Write upserts one batch in a single round trip.
func (pw *PostgresWriter) Write(products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}
	pw.mu.Lock()
	defer pw.mu.Unlock()

	batch := &pgx.Batch{}
	scrapedAt := pw.now().UTC()
	for _, product := range products {
		args, err := productArgs(product, scrapedAt)
		if err != nil {
			return err
		}
		batch.Queue(upsertProduct, args...)
	}

	results := pw.conn.SendBatch(pw.ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert product %s: %w", products[i].URL, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch results: %w", err)
	}
	pw.written += len(products)
	return nil
}

func productArgs(p *models.Product, scrapedAt time.Time) ([]any, error) {
	details := p.Details
	if details == nil {
		details = map[string]string{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode product details: %w", err)
	}
	return []any{
		p.URL,
		p.Name,
		p.Price,
		p.Currency,
		p.SKU,
		p.Size,
		p.Color,
		nonNil(p.Sizes),
		nonNil(p.Colors),
		p.Description,
		p.CareInstructions,
		nonNil(p.Images),
		string(encoded),
		scrapedAt,
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Close releases the pool.
func (pw *PostgresWriter) Close() error {
	pw.conn.Close()
	return nil
}

// Validate ensures at least one product was written.
func (pw *PostgresWriter) Validate() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.written == 0 {
		return fmt.Errorf("no products written to postgres")
	}
	return nil
}
