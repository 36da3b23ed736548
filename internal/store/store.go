// Package store reads and writes hospital bill items.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/pkg/models"
)

// ErrNotFound is returned when an item id does not exist
var ErrNotFound = errors.New("bill item not found")

// Repository is the read/write surface the rest of the application uses
type Repository interface {
	List(ctx context.Context) ([]models.BillItem, error)
	Get(ctx context.Context, id int64) (models.BillItem, error)
	Insert(ctx context.Context, item models.BillItem) (models.BillItem, error)
}

// Postgres stores bill items in the bill_items table
type Postgres struct {
	db *sql.DB
}

// Open connects to Postgres through the pgx stdlib driver
func Open(dsn string, cfg config.DatabaseConfig) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing connection pool
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) DB() *sql.DB {
	return p.db
}

func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// List returns every item ordered by id
func (p *Postgres) List(ctx context.Context) ([]models.BillItem, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, item_name, category, cost::float8 FROM bill_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list bill items: %w", err)
	}
	defer rows.Close()

	var items []models.BillItem
	for rows.Next() {
		var item models.BillItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.Cost); err != nil {
			return nil, fmt.Errorf("scan bill item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bill items: %w", err)
	}
	return items, nil
}

// Get returns one item or ErrNotFound
func (p *Postgres) Get(ctx context.Context, id int64) (models.BillItem, error) {
	var item models.BillItem
	err := p.db.QueryRowContext(ctx,
		`SELECT id, item_name, category, cost::float8 FROM bill_items WHERE id = $1`, id).
		Scan(&item.ID, &item.Name, &item.Category, &item.Cost)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BillItem{}, ErrNotFound
	}
	if err != nil {
		return models.BillItem{}, fmt.Errorf("get bill item %d: %w", id, err)
	}
	return item, nil
}

// Insert stores item and returns it with the assigned id
func (p *Postgres) Insert(ctx context.Context, item models.BillItem) (models.BillItem, error) {
	if err := validateItem(item); err != nil {
		return models.BillItem{}, err
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO bill_items (item_name, category, cost) VALUES ($1, $2, $3) RETURNING id`,
		item.Name, item.Category, item.Cost).Scan(&item.ID)
	if err != nil {
		return models.BillItem{}, fmt.Errorf("insert bill item %q: %w", item.Name, err)
	}
	return item, nil
}

func validateItem(item models.BillItem) error {
	if item.Name == "" {
		return errors.New("bill item name is required")
	}
	if item.Category == "" {
		return fmt.Errorf("bill item %q: category is required", item.Name)
	}
	if item.Cost < 0 {
		return fmt.Errorf("bill item %q: cost must not be negative", item.Name)
	}
	return nil
}
