// Package remotetest provides an in-memory remote store and a contract
// suite shared by every remote.Store implementation.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/types"
)

// StoredSale is a sale as held by the fake, with its remote id.
type StoredSale struct {
	ID int64
	types.Sale
}

// Fake is an in-memory remote.Store with failure injection.
type Fake struct {
	mu         sync.Mutex
	categories []types.Category
	products   []types.Product
	sales      map[int64]StoredSale
	byRef      map[string]int64
	nextID     int64

	listErr     error
	createErr   func(call int, sale types.Sale) error
	createCalls int
	gate        chan struct{}
	deleteErr   error
	pingErr     error
}

var _ remote.Store = (*Fake)(nil)

// NewFake returns an empty, reachable fake.
func NewFake() *Fake {
	return &Fake{
		sales: make(map[int64]StoredSale),
		byRef: make(map[string]int64),
	}
}

// SetCatalog replaces the remote catalog.
func (f *Fake) SetCatalog(categories []types.Category, products []types.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = append([]types.Category(nil), categories...)
	f.products = append([]types.Product(nil), products...)
}

// FailLists makes ListCategories and ListProducts return err. Nil clears it.
func (f *Fake) FailLists(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailCreate installs fn, consulted before each CreateSale with the
// 1-based call number. A non-nil result fails that call without writing.
func (f *Fake) FailCreate(fn func(call int, sale types.Sale) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = fn
}

// FailDelete makes DeleteSale return err. Nil clears it.
func (f *Fake) FailDelete(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

// FailPing makes Ping return err. Nil clears it.
func (f *Fake) FailPing(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// Gate blocks every CreateSale until the returned release func is called
// or the call's context ends.
func (f *Fake) Gate() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gate = ch
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// CreateCalls returns how many times CreateSale was invoked.
func (f *Fake) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

// Sales returns the stored sales ordered by id.
func (f *Fake) Sales() []StoredSale {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]StoredSale, 0, len(f.sales))
	for _, s := range f.sales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListCategories returns the categories ordered by id.
func (f *Fake) ListCategories(ctx context.Context) ([]types.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(ctx, "list categories", f.listErr); err != nil {
		return nil, err
	}
	out := append([]types.Category{}, f.categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListProducts returns the products ordered by name with category names
// joined in.
func (f *Fake) ListProducts(ctx context.Context) ([]types.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(ctx, "list products", f.listErr); err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(f.categories))
	for _, c := range f.categories {
		names[c.ID] = c.Name
	}
	out := append([]types.Product{}, f.products...)
	for i := range out {
		out[i].CategoryName = names[out[i].CategoryID]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateSale stores the sale unless its ClientRef is already known.
func (f *Fake) CreateSale(ctx context.Context, sale types.Sale) (int64, error) {
	f.mu.Lock()
	f.createCalls++
	call := f.createCalls
	gate := f.gate
	inject := f.createErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, remote.Unavailable("create sale", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var injected error
	if inject != nil {
		injected = inject(call, sale)
	}
	if err := f.check(ctx, "create sale", injected); err != nil {
		return 0, err
	}
	if err := remote.CheckQuantities(sale.Items); err != nil {
		return 0, err
	}

	if id, ok := f.byRef[sale.ClientRef]; ok {
		return id, nil
	}
	f.nextID++
	stored := sale
	stored.Items = append([]types.LineItem(nil), sale.Items...)
	f.sales[f.nextID] = StoredSale{ID: f.nextID, Sale: stored}
	f.byRef[sale.ClientRef] = f.nextID
	return f.nextID, nil
}

// DeleteSale removes the sale with the given remote id.
func (f *Fake) DeleteSale(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(ctx, "delete sale", f.deleteErr); err != nil {
		return err
	}
	s, ok := f.sales[id]
	if !ok {
		return fmt.Errorf("sale %d: %w", id, remote.ErrNotFound)
	}
	delete(f.sales, id)
	delete(f.byRef, s.ClientRef)
	return nil
}

// Ping reports the injected ping error, if any.
func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check(ctx, "ping", f.pingErr)
}

func (f *Fake) Close() error { return nil }

func (f *Fake) check(ctx context.Context, op string, injected error) error {
	if err := ctx.Err(); err != nil {
		return remote.Unavailable(op, err)
	}
	return remote.Unavailable(op, injected)
}
