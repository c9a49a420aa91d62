package events

// Topic constants for domain events emitted by the checkout core.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderStatus    = "order.status_changed"
	TopicCartMerged     = "cart.merged"
	TopicCouponRedeemed = "coupon.redeemed"
	TopicAdminAudit     = "admin.audit"
)

// DefaultTopics returns the topics forwarded to background notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderStatus,
		TopicCartMerged,
		TopicCouponRedeemed,
	}
}

// OrderCreated is the payload of TopicOrderCreated.
type OrderCreated struct {
	OrderID        string  `json:"orderId"`
	UserID         string  `json:"userId"`
	TotalAmount    string  `json:"totalAmount"`
	CouponCode     *string `json:"couponCode,omitempty"`
	ShippingMethod string  `json:"shippingMethod"`
	ItemCount      int     `json:"itemCount"`
}

// OrderStatusChanged is the payload of TopicOrderStatus.
type OrderStatusChanged struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Status  string `json:"status"`
}

// CartMerged is the payload of TopicCartMerged.
type CartMerged struct {
	CartID      string `json:"cartId"`
	SourceOwner string `json:"sourceOwner"`
	TargetOwner string `json:"targetOwner"`
	Lines       int    `json:"lines"`
}

// CouponRedeemed is the payload of TopicCouponRedeemed.
type CouponRedeemed struct {
	Code      string `json:"code"`
	OrderID   string `json:"orderId"`
	TimesUsed int    `json:"timesUsed"`
}

// AdminAction is the payload of TopicAdminAudit.
type AdminAction struct {
	Actor        string `json:"actor"`
	Action       string `json:"action"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId,omitempty"`
	Method       string `json:"method"`
	Path         string `json:"path"`
	Status       int    `json:"status"`
	RequestID    string `json:"requestId,omitempty"`
}
