package enums

// OrderStatus tracks the lifecycle of a point-of-sale order.
type OrderStatus string

const (
	OrderStatusDraft             OrderStatus = "draft"
	OrderStatusHeld              OrderStatus = "held"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusVoided            OrderStatus = "voided"
	OrderStatusRefunded          OrderStatus = "refunded"
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

var orderStatuses = newSet("order status",
	OrderStatusDraft,
	OrderStatusHeld,
	OrderStatusCompleted,
	OrderStatusVoided,
	OrderStatusRefunded,
	OrderStatusPartiallyRefunded,
	OrderStatusCancelled,
)

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// IsEditable reports whether lines, discounts and payments may still change.
func (s OrderStatus) IsEditable() bool {
	return s == OrderStatusDraft || s == OrderStatusHeld
}

// IsFinalized reports whether the order's money fields are frozen.
func (s OrderStatus) IsFinalized() bool {
	switch s {
	case OrderStatusCompleted,
		OrderStatusVoided,
		OrderStatusRefunded,
		OrderStatusPartiallyRefunded,
		OrderStatusCancelled:
		return true
	}
	return false
}

// IsRefundable reports whether refunds may be recorded against the order.
func (s OrderStatus) IsRefundable() bool {
	return s == OrderStatusCompleted || s == OrderStatusPartiallyRefunded
}

// IsSettled reports whether the order's tenders count toward drawer and terminal totals.
func (s OrderStatus) IsSettled() bool {
	return s == OrderStatusCompleted || s == OrderStatusPartiallyRefunded || s == OrderStatusRefunded
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}
