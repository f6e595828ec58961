// Package catalog serves the product catalog, preferring the remote store
// and falling back to the local cache.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/till/internal/types"
)

// Remote is the read side of the remote store.
type Remote interface {
	ListCategories(ctx context.Context) ([]types.Category, error)
	ListProducts(ctx context.Context) ([]types.Product, error)
}

// Cache is the catalog cache in the local store.
type Cache interface {
	ReplaceCatalog(ctx context.Context, categories []types.Category, products []types.Product) error
	ReadCatalog(ctx context.Context) (*types.Catalog, error)
}

// Connectivity reports the platform network state.
type Connectivity interface {
	IsOnline() bool
}

// Recorder observes where each catalog load was served from.
type Recorder interface {
	CatalogLoaded(source types.CatalogSource)
}

// Manager implements the catalog read path.
type Manager struct {
	remote   Remote
	cache    Cache
	conn     Connectivity
	timeout  time.Duration
	recorder Recorder
	now      func() time.Time
}

// NewManager creates a Manager. timeout bounds the remote fetch; zero
// means no bound beyond the caller's context.
func NewManager(remote Remote, cache Cache, conn Connectivity, timeout time.Duration) *Manager {
	return &Manager{
		remote:  remote,
		cache:   cache,
		conn:    conn,
		timeout: timeout,
		now:     time.Now,
	}
}

// SetRecorder installs a load observer.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// Load returns categories and products from one source. When online and
// the remote fetch succeeds, the cache is replaced with the fresh data.
// Otherwise the last cached snapshot is returned, which is empty on a
// first launch without connectivity.
func (m *Manager) Load(ctx context.Context) (*types.Catalog, error) {
	if m.conn.IsOnline() {
		categories, products, err := m.fetch(ctx)
		if err == nil {
			return m.refresh(ctx, categories, products), nil
		}
		slog.Warn("remote catalog fetch failed, serving cache",
			"component", "catalog",
			"action", "load",
			"error", err,
		)
	}

	catalog, err := m.cache.ReadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog cache: %w", err)
	}
	catalog.Source = types.SourceCache
	m.record(types.SourceCache)
	return catalog, nil
}

func (m *Manager) fetch(ctx context.Context) ([]types.Category, []types.Product, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	categories, err := m.remote.ListCategories(ctx)
	if err != nil {
		return nil, nil, err
	}
	products, err := m.remote.ListProducts(ctx)
	if err != nil {
		return nil, nil, err
	}
	return categories, products, nil
}

// refresh persists a fresh remote snapshot. A cache write failure is
// logged; the caller still gets the fresh data.
func (m *Manager) refresh(ctx context.Context, categories []types.Category, products []types.Product) *types.Catalog {
	if err := m.cache.ReplaceCatalog(context.WithoutCancel(ctx), categories, products); err != nil {
		slog.Error("failed to persist catalog cache",
			"component", "catalog",
			"action", "replace",
			"categories", len(categories),
			"products", len(products),
			"error", err,
		)
	}

	refreshed := m.now().UTC()
	m.record(types.SourceRemote)
	return &types.Catalog{
		Categories:  categories,
		Products:    products,
		Source:      types.SourceRemote,
		RefreshedAt: &refreshed,
	}
}

func (m *Manager) record(source types.CatalogSource) {
	if m.recorder != nil {
		m.recorder.CatalogLoaded(source)
	}
}
