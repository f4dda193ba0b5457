package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder             OutboxAggregateType = "order"
	AggregateRefund            OutboxAggregateType = "refund"
	AggregateCashDrawerSession OutboxAggregateType = "cash_drawer_session"
)

var aggregateTypes = newSet("aggregate type",
	AggregateOrder,
	AggregateRefund,
	AggregateCashDrawerSession,
)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCompleted     OutboxEventType = "order_completed"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderRefunded      OutboxEventType = "order_refunded"
	EventCashDrawerOpened   OutboxEventType = "cash_drawer_opened"
	EventCashDrawerClosed   OutboxEventType = "cash_drawer_closed"
	EventTerminalReconciled OutboxEventType = "terminal_reconciled"
)

var outboxEventTypes = newSet("outbox event type",
	EventOrderCompleted,
	EventOrderCancelled,
	EventOrderRefunded,
	EventCashDrawerOpened,
	EventCashDrawerClosed,
	EventTerminalReconciled,
)

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse(value)
}
