package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer settled a sale.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// PaymentMethods lists every accepted payment method.
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentTransfer}

// ParsePaymentMethod converts a wire value into a PaymentMethod.
// Matching is case-insensitive.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// SyncState tracks whether a locally captured sale reached the remote store.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
)

// CatalogSource tells the caller where a catalog snapshot came from.
type CatalogSource string

const (
	SourceRemote CatalogSource = "remote"
	SourceCache  CatalogSource = "cache"
)

// Category is a product grouping as stored remotely and mirrored in the cache.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is the flat catalog row. CategoryName is joined at read time
// from the category table so cached rows need no relation lookup.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	ImageURL     string          `json:"image_url,omitempty"`
}

// Catalog is one consistent snapshot of categories and products.
// Both collections always come from the same source.
type Catalog struct {
	Categories  []Category    `json:"categories"`
	Products    []Product     `json:"products"`
	Source      CatalogSource `json:"source"`
	RefreshedAt *time.Time    `json:"refreshed_at,omitempty"`
}

// MarshalJSON ensures nil slices in Catalog marshal as [] not null.
func (c Catalog) MarshalJSON() ([]byte, error) {
	if c.Categories == nil {
		c.Categories = []Category{}
	}
	if c.Products == nil {
		c.Products = []Product{}
	}
	type Alias Catalog
	return json.Marshal(Alias(c))
}

// LineItem is one cart line.
type LineItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns quantity * unit price.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is a completed checkout handed to the commit path.
// Business validation happens before it reaches the core.
type Cart struct {
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Tendered      decimal.Decimal `json:"tendered"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// ItemsTotal sums the line subtotals.
func (c Cart) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}

// Sale is the persisted shape of a checkout, identical for the remote
// store and the local queue.
type Sale struct {
	// ClientRef is generated once at capture and travels with the sale,
	// so a retried remote write can be recognised as the same sale.
	ClientRef     string          `json:"client_ref"`
	Total         decimal.Decimal `json:"total"`
	Tendered      decimal.Decimal `json:"tendered"`
	ChangeDue     decimal.Decimal `json:"change_due"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CapturedAt    time.Time       `json:"captured_at"`
	Items         []LineItem      `json:"items"`
}

// NewSale builds the sale for a cart. Only cash carries a tendered amount
// and change; card and transfer are recorded as paid in full.
func NewSale(cart Cart, clientRef string, capturedAt time.Time) Sale {
	tendered := cart.Total
	change := decimal.Zero
	if cart.PaymentMethod == PaymentCash {
		tendered = cart.Tendered
		change = cart.Tendered.Sub(cart.Total)
	}

	items := make([]LineItem, len(cart.Items))
	copy(items, cart.Items)

	return Sale{
		ClientRef:     clientRef,
		Total:         cart.Total,
		Tendered:      tendered,
		ChangeDue:     change,
		PaymentMethod: cart.PaymentMethod,
		CapturedAt:    capturedAt.UTC(),
		Items:         items,
	}
}

// PendingSale is a sale waiting in the local queue.
type PendingSale struct {
	LocalID   int64     `json:"local_id"`
	SyncState SyncState `json:"sync_state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	Sale
}

// CommitResult reports where a committed sale ended up.
type CommitResult struct {
	PersistedRemotely bool            `json:"persisted_remotely"`
	RemoteID          int64           `json:"remote_id,omitempty"`
	LocalID           int64           `json:"local_id,omitempty"`
	ClientRef         string          `json:"client_ref"`
	ChangeDue         decimal.Decimal `json:"change_due"`
}

// SyncResult aggregates one sync cycle.
// Skipped is set when the call found another cycle already running.
type SyncResult struct {
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Online        bool   `json:"online"`
	Pending       int    `json:"pending"`
	SchemaVersion int64  `json:"schema_version"`
}

// SyncStatus is the presentation-layer view of the sync subsystem.
type SyncStatus struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
	Syncing bool `json:"syncing"`
}
