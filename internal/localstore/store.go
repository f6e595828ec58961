package localstore

import (
	"context"
	"time"

	"github.com/hyperengineering/till/internal/types"
)

// Store defines the contract of the durable local store: a pending-sale
// queue and two catalog cache collections, each addressed independently.
type Store interface {
	EnqueueSale(ctx context.Context, sale types.Sale) (int64, error)
	ListPending(ctx context.Context) ([]types.PendingSale, error)
	GetPending(ctx context.Context, localID int64) (*types.PendingSale, error)
	DeleteSale(ctx context.Context, localID int64) error
	RecordSyncFailure(ctx context.Context, localID int64, cause error) error
	CountPending(ctx context.Context) (int, error)

	ReplaceCategories(ctx context.Context, categories []types.Category) error
	ReplaceProducts(ctx context.Context, products []types.Product) error
	ReplaceCatalog(ctx context.Context, categories []types.Category, products []types.Product) error
	ReadCategories(ctx context.Context) ([]types.Category, error)
	ReadProducts(ctx context.Context) ([]types.Product, error)
	ReadCatalog(ctx context.Context) (*types.Catalog, error)

	SchemaVersion(ctx context.Context) (int64, error)
	Backup(ctx context.Context, destPath string) error
	Close() error
}

// Metadata keys
const (
	metaCatalogRefreshedAt = "catalog_refreshed_at"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
