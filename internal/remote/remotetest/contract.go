package remotetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/types"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// RunSaleContract exercises the sale write path of a remote.Store.
// productID must name a product that exists in the store.
func RunSaleContract(t *testing.T, store remote.Store, productID int64) {
	t.Helper()
	ctx := context.Background()

	newSale := func() types.Sale {
		cart := types.Cart{
			Items: []types.LineItem{
				{ProductID: productID, Quantity: 2, UnitPrice: decimal.RequireFromString("15.00")},
				{ProductID: productID, Quantity: 1, UnitPrice: decimal.RequireFromString("15.00")},
			},
			Total:         decimal.RequireFromString("45.00"),
			Tendered:      decimal.RequireFromString("50.00"),
			PaymentMethod: types.PaymentCash,
		}
		return types.NewSale(cart, ulid.Make().String(), time.Now())
	}

	t.Run("create returns an id", func(t *testing.T) {
		id, err := store.CreateSale(ctx, newSale())
		if err != nil {
			t.Fatalf("CreateSale() error = %v", err)
		}
		if id <= 0 {
			t.Errorf("CreateSale() id = %d, want > 0", id)
		}
	})

	t.Run("same client ref is written once", func(t *testing.T) {
		sale := newSale()
		first, err := store.CreateSale(ctx, sale)
		if err != nil {
			t.Fatalf("first CreateSale() error = %v", err)
		}
		second, err := store.CreateSale(ctx, sale)
		if err != nil {
			t.Fatalf("second CreateSale() error = %v", err)
		}
		if first != second {
			t.Errorf("retry returned id %d, want %d", second, first)
		}
	})

	t.Run("quantity beyond the column is rejected", func(t *testing.T) {
		sale := newSale()
		sale.Items[0].Quantity = remote.MaxQuantity + 1

		_, err := store.CreateSale(ctx, sale)
		if !errors.Is(err, remote.ErrOutOfRange) {
			t.Fatalf("CreateSale() error = %v, want ErrOutOfRange", err)
		}
		if errors.Is(err, remote.ErrUnavailable) {
			t.Error("out of range sale classified as unavailable")
		}
	})

	t.Run("delete then delete again", func(t *testing.T) {
		id, err := store.CreateSale(ctx, newSale())
		if err != nil {
			t.Fatalf("CreateSale() error = %v", err)
		}
		if err := store.DeleteSale(ctx, id); err != nil {
			t.Fatalf("DeleteSale() error = %v", err)
		}
		err = store.DeleteSale(ctx, id)
		if !errors.Is(err, remote.ErrNotFound) {
			t.Errorf("second DeleteSale() error = %v, want ErrNotFound", err)
		}
		if errors.Is(err, remote.ErrUnavailable) {
			t.Error("not found must not be reported as unavailable")
		}
	})

	t.Run("cancelled context is unavailable", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.CreateSale(cctx, newSale())
		if !errors.Is(err, remote.ErrUnavailable) {
			t.Errorf("CreateSale(cancelled) error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("catalog lists answer", func(t *testing.T) {
		if _, err := store.ListCategories(ctx); err != nil {
			t.Errorf("ListCategories() error = %v", err)
		}
		products, err := store.ListProducts(ctx)
		if err != nil {
			t.Fatalf("ListProducts() error = %v", err)
		}
		for i := 1; i < len(products); i++ {
			if products[i-1].Name > products[i].Name {
				t.Errorf("products not ordered by name: %q before %q", products[i-1].Name, products[i].Name)
			}
		}
	})
}
