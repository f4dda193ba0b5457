package enums

// OrderEventType names an entry in the append-only order audit log.
type OrderEventType string

const (
	OrderEventCreated             OrderEventType = "created"
	OrderEventLineAdded           OrderEventType = "line_added"
	OrderEventLineUpdated         OrderEventType = "line_updated"
	OrderEventLineRemoved         OrderEventType = "line_removed"
	OrderEventDiscountApplied     OrderEventType = "discount_applied"
	OrderEventDiscountRemoved     OrderEventType = "discount_removed"
	OrderEventDiscountUnitExclude OrderEventType = "discount_unit_excluded"
	OrderEventDiscountUnitRestore OrderEventType = "discount_unit_restored"
	OrderEventCustomerChanged     OrderEventType = "customer_changed"
	OrderEventTaxExemptChanged    OrderEventType = "tax_exempt_changed"
	OrderEventNotesChanged        OrderEventType = "notes_changed"
	OrderEventTotalsRecalculated  OrderEventType = "totals_recalculated"
	OrderEventPaymentAdded        OrderEventType = "payment_added"
	OrderEventPaymentRemoved      OrderEventType = "payment_removed"
	OrderEventHeld                OrderEventType = "held"
	OrderEventResumed             OrderEventType = "resumed"
	OrderEventCompleted           OrderEventType = "completed"
	OrderEventCancelled           OrderEventType = "cancelled"
	OrderEventRefunded            OrderEventType = "refunded"
	OrderEventPartiallyRefunded   OrderEventType = "partially_refunded"
)

var orderEventTypes = newSet("order event type",
	OrderEventCreated,
	OrderEventLineAdded,
	OrderEventLineUpdated,
	OrderEventLineRemoved,
	OrderEventDiscountApplied,
	OrderEventDiscountRemoved,
	OrderEventDiscountUnitExclude,
	OrderEventDiscountUnitRestore,
	OrderEventCustomerChanged,
	OrderEventTaxExemptChanged,
	OrderEventNotesChanged,
	OrderEventTotalsRecalculated,
	OrderEventPaymentAdded,
	OrderEventPaymentRemoved,
	OrderEventHeld,
	OrderEventResumed,
	OrderEventCompleted,
	OrderEventCancelled,
	OrderEventRefunded,
	OrderEventPartiallyRefunded,
)

func (t OrderEventType) IsValid() bool { return orderEventTypes.has(t) }

func ParseOrderEventType(value string) (OrderEventType, error) {
	return orderEventTypes.parse(value)
}
