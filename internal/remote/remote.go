// Package remote defines the contract the till core needs from the hosted
// database of record, and the error taxonomy for remote failures.
package remote

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hyperengineering/till/internal/types"
)

var (
	// ErrUnavailable marks any network or backend failure. It is always
	// recoverable by queueing locally or retrying later.
	ErrUnavailable = errors.New("remote store unavailable")

	// ErrNotFound is returned when a sale to delete does not exist.
	ErrNotFound = errors.New("remote sale not found")

	// ErrNotConfigured is returned by the Disabled store.
	ErrNotConfigured = errors.New("remote store not configured")

	// ErrOutOfRange is returned for a sale the remote schema cannot hold.
	// Retrying never helps, so it does not match ErrUnavailable.
	ErrOutOfRange = errors.New("sale value out of range")
)

// MaxQuantity is the largest line quantity the remote INT column stores.
const MaxQuantity = math.MaxInt32

// CheckQuantities rejects line quantities outside 1..MaxQuantity.
func CheckQuantities(items []types.LineItem) error {
	for i, item := range items {
		if item.Quantity < 1 || item.Quantity > MaxQuantity {
			return fmt.Errorf("%w: items[%d] quantity %d", ErrOutOfRange, i, item.Quantity)
		}
	}
	return nil
}

// Store is the remote store as seen by the till core.
type Store interface {
	// ListCategories returns every category ordered by id.
	ListCategories(ctx context.Context) ([]types.Category, error)

	// ListProducts returns every product ordered by name with the
	// category name joined in.
	ListProducts(ctx context.Context) ([]types.Product, error)

	// CreateSale writes the sale row and all of its line items in one
	// transaction and returns the remote sale id. A sale whose ClientRef
	// already exists is not written again; the existing id is returned.
	CreateSale(ctx context.Context, sale types.Sale) (int64, error)

	// DeleteSale removes a sale and its line items in one transaction.
	DeleteSale(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}

// Error wraps a failed remote operation. It matches ErrUnavailable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "remote store: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrUnavailable for every wrapped remote failure.
func (e *Error) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable wraps err as a remote Error for op. ErrNotFound and nil pass
// through unchanged.
func Unavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Disabled is used when no remote backend is configured. Every call fails
// with ErrUnavailable so the core runs fully offline.
type Disabled struct{}

var _ Store = Disabled{}

func (Disabled) ListCategories(ctx context.Context) ([]types.Category, error) {
	return nil, Unavailable("list categories", ErrNotConfigured)
}

func (Disabled) ListProducts(ctx context.Context) ([]types.Product, error) {
	return nil, Unavailable("list products", ErrNotConfigured)
}

func (Disabled) CreateSale(ctx context.Context, sale types.Sale) (int64, error) {
	return 0, Unavailable("create sale", ErrNotConfigured)
}

func (Disabled) DeleteSale(ctx context.Context, id int64) error {
	return Unavailable("delete sale", ErrNotConfigured)
}

func (Disabled) Ping(ctx context.Context) error {
	return Unavailable("ping", ErrNotConfigured)
}

func (Disabled) Close() error { return nil }
