// Package postgres implements the remote store on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Schema is the DDL the remote database must provide. The till never
// migrates the remote store; this is printed for operators.
//
//go:embed schema.sql
var Schema string

// Store is the PostgreSQL remote store.
type Store struct {
	pool *pgxpool.Pool
}

var _ remote.Store = (*Store)(nil)

// New connects a small pool to the database at connString and pings it.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// One terminal, sequential writes.
	config.MaxConns = 4
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the backend answers.
func (s *Store) Ping(ctx context.Context) error {
	return remote.Unavailable("ping", s.pool.Ping(ctx))
}

// ListCategories returns every category ordered by id.
func (s *Store) ListCategories(ctx context.Context) ([]types.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, remote.Unavailable("list categories", err)
	}
	defer rows.Close()

	out := []types.Category{}
	for rows.Next() {
		var c types.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, remote.Unavailable("list categories", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, remote.Unavailable("list categories", err)
	}
	return out, nil
}

// ListProducts returns every product ordered by name, joined with its
// category name.
func (s *Store) ListProducts(ctx context.Context) ([]types.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.price, p.category_id, COALESCE(c.name, ''), COALESCE(p.image_url, '')
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY p.name, p.id
	`)
	if err != nil {
		return nil, remote.Unavailable("list products", err)
	}
	defer rows.Close()

	out := []types.Product{}
	for rows.Next() {
		var p types.Product
		var price pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.CategoryID, &p.CategoryName, &p.ImageURL); err != nil {
			return nil, remote.Unavailable("list products", err)
		}
		p.Price = fromNumeric(price)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, remote.Unavailable("list products", err)
	}
	return out, nil
}

// CreateSale inserts the sale and its items in one transaction. If a sale
// with the same client_ref exists, its id is returned and nothing is written.
func (s *Store) CreateSale(ctx context.Context, sale types.Sale) (int64, error) {
	if err := remote.CheckQuantities(sale.Items); err != nil {
		return 0, err
	}

	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO sales (client_ref, total, tendered, change, payment_method, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (client_ref) DO NOTHING
			RETURNING id
		`, sale.ClientRef, numeric(sale.Total), numeric(sale.Tendered), numeric(sale.ChangeDue),
			string(sale.PaymentMethod), sale.CapturedAt).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.QueryRow(ctx, `SELECT id FROM sales WHERE client_ref = $1`, sale.ClientRef).Scan(&id)
		}
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		// Quantities were bounded by CheckQuantities above.
		rows := make([][]any, len(sale.Items))
		for i, item := range sale.Items {
			rows[i] = []any{id, item.ProductID, int32(item.Quantity), numeric(item.UnitPrice)}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"sale_items"},
			[]string{"sale_id", "product_id", "quantity", "unit_price"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, remote.Unavailable("create sale", err)
	}
	return id, nil
}

// DeleteSale removes the line items of a sale, then the sale.
func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("sale %d: %w", id, remote.ErrNotFound)
		}
		return nil
	})
	return remote.Unavailable("delete sale", err)
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil || n.NaN {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
