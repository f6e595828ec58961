package validation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hyperengineering/till/internal/types"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validCart() types.Cart {
	return types.Cart{
		Items: []types.LineItem{
			{ProductID: 1, Quantity: 2, UnitPrice: dec("15.00")},
			{ProductID: 2, Quantity: 1, UnitPrice: dec("15.00")},
		},
		Total:         dec("45.00"),
		Tendered:      dec("50.00"),
		PaymentMethod: types.PaymentCash,
	}
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// --- Collector Tests ---

func TestCollector_AccumulatesErrors(t *testing.T) {
	c := &Collector{}
	c.Add(&ValidationError{Field: "a", Message: "bad"})
	c.Add(&ValidationError{Field: "b", Message: "bad"})

	if len(c.Errors()) != 2 {
		t.Errorf("len(Errors()) = %d, want 2", len(c.Errors()))
	}
}

func TestCollector_IgnoresNil(t *testing.T) {
	c := &Collector{}
	c.Add(nil)

	if c.HasErrors() {
		t.Error("HasErrors() = true after adding nil")
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "total", Message: "must not be negative"}
	if e.Error() != "total: must not be negative" {
		t.Errorf("Error() = %q", e.Error())
	}
}

// --- Field validators ---

func TestValidateRequired(t *testing.T) {
	if ValidateRequired("f", "x") != nil {
		t.Error("ValidateRequired(x) != nil")
	}
	for _, v := range []string{"", "   ", "\t\n"} {
		if ValidateRequired("f", v) == nil {
			t.Errorf("ValidateRequired(%q) = nil, want error", v)
		}
	}
}

func TestValidateEnum_CaseSensitive(t *testing.T) {
	allowed := []string{"cash", "card"}
	if ValidateEnum("f", "cash", allowed) != nil {
		t.Error("ValidateEnum(cash) != nil")
	}
	if err := ValidateEnum("f", "CASH", allowed); err == nil || !strings.Contains(err.Message, "cash, card") {
		t.Errorf("ValidateEnum(CASH) = %v, want error listing allowed values", err)
	}
}

func TestValidateMinQuantity(t *testing.T) {
	tests := []struct {
		q       int
		wantErr bool
	}{
		{1, false}, {5, false}, {0, true}, {-1, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.q), func(t *testing.T) {
			if got := ValidateMinQuantity("q", tt.q, 1); (got != nil) != tt.wantErr {
				t.Errorf("ValidateMinQuantity(%d) = %v, wantErr %v", tt.q, got, tt.wantErr)
			}
		})
	}
}

func TestValidateMaxQuantity(t *testing.T) {
	tests := []struct {
		q       int
		wantErr bool
	}{
		{1, false}, {MaxQuantity, false}, {MaxQuantity + 1, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.q), func(t *testing.T) {
			if got := ValidateMaxQuantity("q", tt.q, MaxQuantity); (got != nil) != tt.wantErr {
				t.Errorf("ValidateMaxQuantity(%d) = %v, wantErr %v", tt.q, got, tt.wantErr)
			}
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	if ValidateNonNegative("p", dec("0")) != nil {
		t.Error("zero rejected")
	}
	if ValidateNonNegative("p", dec("-0.01")) == nil {
		t.Error("negative accepted")
	}
}

// --- ValidateCart ---

func TestValidateCart_Valid(t *testing.T) {
	if errs := ValidateCart(validCart()); len(errs) != 0 {
		t.Errorf("ValidateCart() = %v, want no errors", errs)
	}
}

func TestValidateCart_CardIgnoresTendered(t *testing.T) {
	cart := validCart()
	cart.PaymentMethod = types.PaymentCard
	cart.Tendered = decimal.Zero

	if errs := ValidateCart(cart); len(errs) != 0 {
		t.Errorf("ValidateCart() = %v, want no errors", errs)
	}
}

func TestValidateCart_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Cart)
		field  string
	}{
		{"empty", func(c *types.Cart) { c.Items = nil; c.Total = decimal.Zero }, "items"},
		{"zero quantity", func(c *types.Cart) { c.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"quantity above max", func(c *types.Cart) {
			c.Items[0].Quantity = MaxQuantity + 1
			c.Total = c.ItemsTotal()
			c.Tendered = c.Total
		}, "items[0].quantity"},
		{"quantity beyond int32", func(c *types.Cart) {
			c.PaymentMethod = types.PaymentCard
			c.Items[0].Quantity = 1 << 31
			c.Total = c.ItemsTotal()
		}, "items[0].quantity"},
		{"negative price", func(c *types.Cart) { c.Items[1].UnitPrice = dec("-1") }, "items[1].unit_price"},
		{"missing product", func(c *types.Cart) { c.Items[0].ProductID = 0 }, "items[0].product_id"},
		{"total mismatch", func(c *types.Cart) { c.Total = dec("40.00") }, "total"},
		{"unknown method", func(c *types.Cart) { c.PaymentMethod = "cheque" }, "payment_method"},
		{"missing method", func(c *types.Cart) { c.PaymentMethod = "" }, "payment_method"},
		{"cash short", func(c *types.Cart) { c.Tendered = dec("44.99") }, "tendered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := validCart()
			tt.mutate(&cart)

			errs := ValidateCart(cart)
			if !hasField(errs, tt.field) {
				t.Errorf("ValidateCart() = %v, want error on %s", errs, tt.field)
			}
		})
	}
}

func TestValidateCart_TooManyItems(t *testing.T) {
	cart := types.Cart{PaymentMethod: types.PaymentCard}
	for i := 0; i <= MaxCartItems; i++ {
		cart.Items = append(cart.Items, types.LineItem{ProductID: 1, Quantity: 1, UnitPrice: dec("1")})
	}
	cart.Total = cart.ItemsTotal()

	if !hasField(ValidateCart(cart), "items") {
		t.Error("oversized cart accepted")
	}
}

func TestValidateCart_AllErrorsCollected(t *testing.T) {
	cart := types.Cart{
		Items:         []types.LineItem{{ProductID: 0, Quantity: 0, UnitPrice: dec("-1")}},
		Total:         dec("-1"),
		PaymentMethod: "bitcoin",
	}

	if errs := ValidateCart(cart); len(errs) < 5 {
		t.Errorf("ValidateCart() collected %d errors, want at least 5: %v", len(errs), errs)
	}
}
