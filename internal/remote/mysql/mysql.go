// Package mysql implements the remote store on MySQL through database/sql.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/types"
)

// Schema is the DDL the remote database must provide.
//
//go:embed schema.sql
var Schema string

// errDuplicateEntry is MySQL's ER_DUP_ENTRY.
const errDuplicateEntry = 1062

// Store is the MySQL remote store.
type Store struct {
	db *sql.DB
}

var _ remote.Store = (*Store)(nil)

// New opens a connection pool for dsn and pings it. Times are exchanged
// in UTC regardless of what the DSN asks for.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysqldrv.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the backend answers.
func (s *Store) Ping(ctx context.Context) error {
	return remote.Unavailable("ping", s.db.PingContext(ctx))
}

// ListCategories returns every category ordered by id.
func (s *Store) ListCategories(ctx context.Context) ([]types.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
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

// ListProducts returns every product ordered by name with its category name.
func (s *Store) ListProducts(ctx context.Context) ([]types.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.CategoryName, &p.ImageURL); err != nil {
			return nil, remote.Unavailable("list products", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, remote.Unavailable("list products", err)
	}
	return out, nil
}

// CreateSale inserts the sale and its items in one transaction. A duplicate
// client_ref resolves to the id already stored.
func (s *Store) CreateSale(ctx context.Context, sale types.Sale) (int64, error) {
	if err := remote.CheckQuantities(sale.Items); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, remote.Unavailable("create sale", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "INSERT INTO sales (client_ref, total, tendered, `change`, payment_method, captured_at) VALUES (?, ?, ?, ?, ?, ?)",
		sale.ClientRef, sale.Total, sale.Tendered, sale.ChangeDue, string(sale.PaymentMethod), sale.CapturedAt.UTC())
	if isDuplicate(err) {
		_ = tx.Rollback()
		var id int64
		err := s.db.QueryRowContext(ctx, `SELECT id FROM sales WHERE client_ref = ?`, sale.ClientRef).Scan(&id)
		if err != nil {
			return 0, remote.Unavailable("create sale", err)
		}
		return id, nil
	}
	if err != nil {
		return 0, remote.Unavailable("create sale", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, remote.Unavailable("create sale", err)
	}

	if len(sale.Items) > 0 {
		query, args := itemsInsert(id, sale.Items)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, remote.Unavailable("create sale", fmt.Errorf("insert items: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, remote.Unavailable("create sale", err)
	}
	return id, nil
}

// DeleteSale removes the line items of a sale, then the sale.
func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return remote.Unavailable("delete sale", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, id); err != nil {
		return remote.Unavailable("delete sale", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return remote.Unavailable("delete sale", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return remote.Unavailable("delete sale", err)
	}
	if n == 0 {
		return fmt.Errorf("sale %d: %w", id, remote.ErrNotFound)
	}
	return remote.Unavailable("delete sale", tx.Commit())
}

// itemsInsert builds one multi-row INSERT for the line items of a sale.
func itemsInsert(saleID int64, items []types.LineItem) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO sale_items (sale_id, product_id, quantity, unit_price) VALUES ")
	args := make([]any, 0, len(items)*4)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, saleID, item.ProductID, item.Quantity, item.UnitPrice)
	}
	return b.String(), args
}

func isDuplicate(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}
