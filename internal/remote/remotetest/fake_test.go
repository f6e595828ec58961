package remotetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/types"
	"github.com/shopspring/decimal"
)

func TestFake_SaleContract(t *testing.T) {
	f := NewFake()
	f.SetCatalog([]types.Category{{ID: 1, Name: "Drinks"}}, []types.Product{{ID: 10, Name: "Cola", CategoryID: 1}})
	RunSaleContract(t, f, 10)
}

func TestFake_ListProducts_JoinsAndOrders(t *testing.T) {
	f := NewFake()
	f.SetCatalog(
		[]types.Category{{ID: 2, Name: "Snacks"}, {ID: 1, Name: "Drinks"}},
		[]types.Product{
			{ID: 1, Name: "Water", Price: decimal.RequireFromString("1"), CategoryID: 1},
			{ID: 2, Name: "Chips", Price: decimal.RequireFromString("2"), CategoryID: 2},
		},
	)

	cats, err := f.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if cats[0].ID != 1 {
		t.Errorf("first category id = %d, want 1", cats[0].ID)
	}

	prods, err := f.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts() error = %v", err)
	}
	if prods[0].Name != "Chips" || prods[0].CategoryName != "Snacks" {
		t.Errorf("first product = %+v, want Chips/Snacks", prods[0])
	}
}

func TestFake_FailCreate(t *testing.T) {
	f := NewFake()
	f.FailCreate(func(call int, _ types.Sale) error {
		if call == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	sale := types.Sale{ClientRef: "a", CapturedAt: time.Now()}

	_, err := f.CreateSale(context.Background(), sale)
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("first CreateSale() error = %v, want ErrUnavailable", err)
	}
	if len(f.Sales()) != 0 {
		t.Fatal("failed call wrote a sale")
	}

	if _, err := f.CreateSale(context.Background(), sale); err != nil {
		t.Fatalf("second CreateSale() error = %v", err)
	}
	if f.CreateCalls() != 2 {
		t.Errorf("CreateCalls() = %d, want 2", f.CreateCalls())
	}
}

func TestFake_GateHonoursContext(t *testing.T) {
	f := NewFake()
	release := f.Gate()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.CreateSale(ctx, types.Sale{ClientRef: "b"})
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Errorf("CreateSale() error = %v, want ErrUnavailable", err)
	}
}
