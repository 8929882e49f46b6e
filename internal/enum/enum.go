package enum

// ── Order lifecycle (shared by parent orders and store sub-orders) ──

const (
	OrderStatusPending            = "pending"
	OrderStatusConfirmed          = "confirmed"
	OrderStatusProcessing         = "processing"
	OrderStatusWaitingForDelivery = "waiting_for_delivery"
	OrderStatusShipped            = "shipped"
	OrderStatusDelivered          = "delivered"
	OrderStatusCancelled          = "cancelled"
	OrderStatusRefunded           = "refunded"
)

// OrderStatuses lists every known order status in canonical lifecycle order,
// terminal states last.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusWaitingForDelivery,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// IsValidOrderStatus reports whether s is one of the known order statuses.
func IsValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusWaitingForDelivery, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// ── Caller roles ──

const (
	RoleAdmin    = "admin"
	RoleMerchant = "merchant"
)
