// Package validation checks carts before they reach the commit path.
// The core itself never re-validates business rules.
package validation

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/till/internal/types"
	"github.com/shopspring/decimal"
)

// MaxCartItems bounds the number of lines in one cart.
const MaxCartItems = 500

// MaxQuantity bounds a single line. It sits well inside the remote INT
// column so an accepted cart can always sync.
const MaxQuantity = 10000

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePositiveID returns an error unless id > 0.
func ValidatePositiveID(field string, id int64) *ValidationError {
	if id <= 0 {
		return &ValidationError{
			Field:   field,
			Message: "must be a positive id",
		}
	}
	return nil
}

// ValidateMinQuantity returns an error if q is below min.
func ValidateMinQuantity(field string, q, min int) *ValidationError {
	if q < min {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at least %d", min),
		}
	}
	return nil
}

// ValidateMaxQuantity returns an error if q is above max.
func ValidateMaxQuantity(field string, q, max int) *ValidationError {
	if q > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d", max),
		}
	}
	return nil
}

// ValidateNonNegative returns an error for amounts below zero.
func ValidateNonNegative(field string, amount decimal.Decimal) *ValidationError {
	if amount.IsNegative() {
		return &ValidationError{
			Field:   field,
			Message: "must not be negative",
		}
	}
	return nil
}

// ValidateCart checks a checkout request: at least one line, every
// quantity in 1..MaxQuantity, every unit price >= 0, a total equal to the sum of the
// lines, a known payment method and, for cash, tendered >= total.
func ValidateCart(cart types.Cart) []ValidationError {
	c := &Collector{}

	if len(cart.Items) == 0 {
		c.Add(&ValidationError{Field: "items", Message: "must contain at least one item"})
	}
	if len(cart.Items) > MaxCartItems {
		c.Add(&ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("exceeds maximum of %d items", MaxCartItems),
		})
	}

	for i, item := range cart.Items {
		prefix := fmt.Sprintf("items[%d]", i)
		c.Add(ValidatePositiveID(prefix+".product_id", item.ProductID))
		c.Add(ValidateMinQuantity(prefix+".quantity", item.Quantity, 1))
		c.Add(ValidateMaxQuantity(prefix+".quantity", item.Quantity, MaxQuantity))
		c.Add(ValidateNonNegative(prefix+".unit_price", item.UnitPrice))
	}

	c.Add(ValidateNonNegative("total", cart.Total))
	if len(cart.Items) > 0 && !cart.Total.Equal(cart.ItemsTotal()) {
		c.Add(&ValidationError{
			Field:   "total",
			Message: fmt.Sprintf("must equal the sum of the items (%s)", cart.ItemsTotal().StringFixed(2)),
		})
	}

	if err := ValidateRequired("payment_method", string(cart.PaymentMethod)); err != nil {
		c.Add(err)
	} else {
		allowed := make([]string, len(types.PaymentMethods))
		for i, m := range types.PaymentMethods {
			allowed[i] = string(m)
		}
		c.Add(ValidateEnum("payment_method", string(cart.PaymentMethod), allowed))
	}

	if cart.PaymentMethod == types.PaymentCash && cart.Tendered.LessThan(cart.Total) {
		c.Add(&ValidationError{
			Field:   "tendered",
			Message: "must cover the total for cash payments",
		})
	}

	return c.Errors()
}
