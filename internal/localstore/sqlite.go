package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperengineering/till/internal/types"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed durable local store.
type SQLiteStore struct {
	db   *sql.DB
	path string

	// version is fixed once Open has migrated the schema.
	version int64

	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// Open creates or opens the local database at path and applies any pending
// migrations. Every pooled connection gets the same pragmas through the DSN.
func Open(path string) (*SQLiteStore, error) {
	inMemory := path == ":memory:"

	if !inMemory {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, storageErr("open", fmt.Errorf("create database directory: %w", err))
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, storageErr("open", err)
	}

	// An in-memory database exists per connection.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("open", err)
	}

	version, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}

	return &SQLiteStore{db: db, path: path, version: version}, nil
}

// buildDSN returns a modernc.org/sqlite DSN carrying the connection pragmas.
func buildDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_txlock", "immediate")
	if path == ":memory:" {
		return "file::memory:?" + q.Encode()
	}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EnqueueSale appends a sale and its line items to the pending queue as one
// durable unit and returns the autoincrement local id.
func (s *SQLiteStore) EnqueueSale(ctx context.Context, sale types.Sale) (int64, error) {
	var localID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO pending_sales (client_ref, total, tendered, change_due, payment_method, captured_at, sync_state)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sale.ClientRef, sale.Total, sale.Tendered, sale.ChangeDue, string(sale.PaymentMethod),
			formatTime(sale.CapturedAt), string(types.SyncPending))
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		localID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read local id: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pending_sale_items (local_id, position, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare items: %w", err)
		}
		defer stmt.Close()

		for i, item := range sale.Items {
			if _, err := stmt.ExecContext(ctx, localID, i, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("enqueue sale", err)
	}
	return localID, nil
}

const pendingColumns = `local_id, client_ref, total, tendered, change_due, payment_method, captured_at, sync_state, attempts, last_error`

// ListPending returns every pending sale, oldest capture first.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]types.PendingSale, error) {
	var pending []types.PendingSale
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+pendingColumns+`
			FROM pending_sales
			WHERE sync_state = ?
			ORDER BY captured_at ASC, local_id ASC
		`, string(types.SyncPending))
		if err != nil {
			return err
		}
		for rows.Next() {
			ps, err := scanPendingSale(rows)
			if err != nil {
				rows.Close()
				return err
			}
			pending = append(pending, *ps)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for i := range pending {
			items, err := loadItems(ctx, tx, pending[i].LocalID)
			if err != nil {
				return err
			}
			pending[i].Items = items
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	return pending, nil
}

// GetPending returns a single queued sale.
func (s *SQLiteStore) GetPending(ctx context.Context, localID int64) (*types.PendingSale, error) {
	var ps *types.PendingSale
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_sales WHERE local_id = ?`, localID)
		var err error
		ps, err = scanPendingSale(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		ps.Items, err = loadItems(ctx, tx, localID)
		return err
	})
	if err != nil {
		return nil, storageErr("get pending", err)
	}
	return ps, nil
}

// DeleteSale removes a sale and its line items from the queue.
// Returns ErrNotFound if no such sale is queued.
func (s *SQLiteStore) DeleteSale(ctx context.Context, localID int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_sale_items WHERE local_id = ?`, localID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM pending_sales WHERE local_id = ?`, localID)
		if err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	return storageErr("delete sale", err)
}

// RecordSyncFailure bumps the attempt counter of a queued sale and keeps
// the latest error text. The sale stays pending.
func (s *SQLiteStore) RecordSyncFailure(ctx context.Context, localID int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE pending_sales SET attempts = attempts + 1, last_error = ?
			WHERE local_id = ?
		`, msg, localID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	return storageErr("record sync failure", err)
}

// CountPending returns the number of sales still waiting for sync.
func (s *SQLiteStore) CountPending(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, storageErr("count pending", err)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_sales WHERE sync_state = ?`, string(types.SyncPending)).Scan(&n)
	if err != nil {
		return 0, storageErr("count pending", err)
	}
	return n, nil
}

// ReplaceCategories clears and repopulates the category cache in one transaction.
func (s *SQLiteStore) ReplaceCategories(ctx context.Context, categories []types.Category) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return replaceCategories(ctx, tx, categories)
	})
	return storageErr("replace categories", err)
}

// ReplaceProducts clears and repopulates the product cache in one transaction.
func (s *SQLiteStore) ReplaceProducts(ctx context.Context, products []types.Product) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return replaceProducts(ctx, tx, products)
	})
	return storageErr("replace products", err)
}

// ReplaceCatalog swaps both cache collections and the refresh timestamp in
// a single transaction, so readers see one generation or the other.
func (s *SQLiteStore) ReplaceCatalog(ctx context.Context, categories []types.Category, products []types.Product) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := replaceCategories(ctx, tx, categories); err != nil {
			return err
		}
		if err := replaceProducts(ctx, tx, products); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, metaCatalogRefreshedAt, formatTime(time.Now()))
		return err
	})
	return storageErr("replace catalog", err)
}

func replaceCategories(ctx context.Context, tx *sql.Tx, categories []types.Category) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_categories`); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cached_categories (id, name) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range categories {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name); err != nil {
			return fmt.Errorf("insert category %d: %w", c.ID, err)
		}
	}
	return nil
}

func replaceProducts(ctx context.Context, tx *sql.Tx, products []types.Product) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_products`); err != nil {
		return fmt.Errorf("clear products: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cached_products (id, name, price, category_id, category_name, image_url)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Price, p.CategoryID, p.CategoryName, p.ImageURL); err != nil {
			return fmt.Errorf("insert product %d: %w", p.ID, err)
		}
	}
	return nil
}

// ReadCategories returns the cached categories ordered by id.
func (s *SQLiteStore) ReadCategories(ctx context.Context) ([]types.Category, error) {
	var out []types.Category
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = readCategories(ctx, tx)
		return err
	})
	if err != nil {
		return nil, storageErr("read categories", err)
	}
	return out, nil
}

// ReadProducts returns the cached products ordered by name.
func (s *SQLiteStore) ReadProducts(ctx context.Context) ([]types.Product, error) {
	var out []types.Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = readProducts(ctx, tx)
		return err
	})
	if err != nil {
		return nil, storageErr("read products", err)
	}
	return out, nil
}

// ReadCatalog reads both cache collections inside one transaction.
func (s *SQLiteStore) ReadCatalog(ctx context.Context) (*types.Catalog, error) {
	catalog := &types.Catalog{Source: types.SourceCache}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if catalog.Categories, err = readCategories(ctx, tx); err != nil {
			return err
		}
		if catalog.Products, err = readProducts(ctx, tx); err != nil {
			return err
		}

		var refreshed string
		err = tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, metaCatalogRefreshedAt).Scan(&refreshed)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return err
		}
		if t, err := parseTime(refreshed); err == nil {
			catalog.RefreshedAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("read catalog", err)
	}
	return catalog, nil
}

func readCategories(ctx context.Context, tx *sql.Tx) ([]types.Category, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM cached_categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Category{}
	for rows.Next() {
		var c types.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func readProducts(ctx context.Context, tx *sql.Tx) ([]types.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, price, category_id, category_name, image_url
		FROM cached_products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Product{}
	for rows.Next() {
		var p types.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.CategoryName, &p.ImageURL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SchemaVersion returns the applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, storageErr("schema version", err)
	}
	return s.version, nil
}

// Backup writes a consistent copy of the database to destPath using
// VACUUM INTO. destPath must not exist.
func (s *SQLiteStore) Backup(ctx context.Context, destPath string) error {
	if err := s.checkOpen(); err != nil {
		return storageErr("backup", err)
	}
	if dir := filepath.Dir(destPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return storageErr("backup", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
		return storageErr("backup", err)
	}
	return nil
}

// scanPendingSale scans a pending_sales row; items are loaded separately.
func scanPendingSale(scanner interface{ Scan(...any) error }) (*types.PendingSale, error) {
	var ps types.PendingSale
	var method, capturedAt, state string

	err := scanner.Scan(
		&ps.LocalID,
		&ps.ClientRef,
		&ps.Total,
		&ps.Tendered,
		&ps.ChangeDue,
		&method,
		&capturedAt,
		&state,
		&ps.Attempts,
		&ps.LastError,
	)
	if err != nil {
		return nil, err
	}

	ps.PaymentMethod = types.PaymentMethod(method)
	ps.SyncState = types.SyncState(state)
	t, err := parseTime(capturedAt)
	if err != nil {
		return nil, fmt.Errorf("parse captured_at for sale %d: %w", ps.LocalID, err)
	}
	ps.CapturedAt = t
	return &ps, nil
}

func loadItems(ctx context.Context, tx *sql.Tx, localID int64) ([]types.LineItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM pending_sale_items
		WHERE local_id = ?
		ORDER BY position
	`, localID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.LineItem
	for rows.Next() {
		var item types.LineItem
		var price decimal.Decimal
		if err := rows.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return nil, err
		}
		item.UnitPrice = price
		items = append(items, item)
	}
	return items, rows.Err()
}
