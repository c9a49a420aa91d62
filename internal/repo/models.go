package repo

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the checkout core needs.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

// CartItem is a single cart line, unique per product within its cart.
type CartItem struct {
	ID            string
	CartID        string
	ProductID     string
	Quantity      int
	IsGiftWrapped bool
	GiftMessage   *string
	AddedAt       time.Time
}

// Cart is owned by a registered user id or a synthesized guest id.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item returns the line for productID.
func (c *Cart) Item(productID string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// ItemCount is the total number of units across all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Promotion is a product-level percentage discount bound to a time window.
type Promotion struct {
	ID                 string
	Name               string
	DiscountPercentage decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
	IsActive           bool
	ProductIDs         []string
}

// ActiveAt reports whether the promotion applies at now (window bounds inclusive).
func (p Promotion) ActiveAt(now time.Time) bool {
	return p.IsActive && !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// DiscountType enumerates coupon discount strategies.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "Percentage"
	DiscountFixedAmount DiscountType = "FixedAmount"
)

// ParseDiscountType accepts the canonical names case-insensitively plus a few aliases.
func ParseDiscountType(v string) (DiscountType, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "percentage", "percent":
		return DiscountPercentage, true
	case "fixedamount", "fixed_amount", "fixed":
		return DiscountFixedAmount, true
	default:
		return "", false
	}
}

// Coupon is an order-level discount redeemable by code.
type Coupon struct {
	ID                 string
	Code               string
	DiscountType       DiscountType
	DiscountAmount     decimal.Decimal
	MinimumOrderAmount decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
	UsageLimit         *int
	TimesUsed          int
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NormalizeCode is the stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// OrderStatusPending is the status new orders start in.
const OrderStatusPending = "Pending"

// OrderItem snapshots a cart line at materialization time.
type OrderItem struct {
	ID           string
	OrderID      string
	ProductID    string
	ProductName  string
	UnitPrice    decimal.Decimal
	Quantity     int
	LineSubtotal decimal.Decimal
}

// Order is immutable after creation except for Status.
type Order struct {
	ID                string
	UserID            string
	OrderDate         time.Time
	Items             []OrderItem
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	ShippingCost      decimal.Decimal
	ShippingMethod    string
	PromotionDiscount decimal.Decimal
	DiscountAmount    decimal.Decimal
	CouponCode        *string
	TotalAmount       decimal.Decimal
	Status            string
}

// DomainEvent is a persisted record of something that happened to an aggregate.
type DomainEvent struct {
	ID          string
	Topic       string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
}
