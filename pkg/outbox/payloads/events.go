package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCompletedEvent is emitted when an order is settled and frozen.
type OrderCompletedEvent struct {
	OrderID             uuid.UUID        `json:"order_id"`
	OrderNumber         string           `json:"order_number"`
	CustomerID          *uuid.UUID       `json:"customer_id,omitempty"`
	CashDrawerSessionID *uuid.UUID       `json:"cash_drawer_session_id,omitempty"`
	Subtotal            decimal.Decimal  `json:"subtotal"`
	DiscountTotal       decimal.Decimal  `json:"discount_total"`
	TaxTotal            decimal.Decimal  `json:"tax_total"`
	Total               decimal.Decimal  `json:"total"`
	Payments            []PaymentSummary `json:"payments"`
	CompletedAt         time.Time        `json:"completed_at"`
}

// PaymentSummary is a tender snapshot carried on settlement events.
type PaymentSummary struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderCancelledEvent is emitted when a draft or held order is abandoned.
type OrderCancelledEvent struct {
	OrderID                 uuid.UUID   `json:"order_id"`
	OrderNumber             string      `json:"order_number"`
	ReversedGiftCertificate []uuid.UUID `json:"reversed_gift_certificates,omitempty"`
	CancelledAt             time.Time   `json:"cancelled_at"`
}

// OrderRefundedEvent is emitted once per processed refund.
type OrderRefundedEvent struct {
	OrderID      uuid.UUID           `json:"order_id"`
	OrderNumber  string              `json:"order_number"`
	RefundID     uuid.UUID           `json:"refund_id"`
	RefundNumber string              `json:"refund_number"`
	OrderStatus  string              `json:"order_status"`
	Total        decimal.Decimal     `json:"total"`
	Reason       string              `json:"reason"`
	Lines        []RefundLineSummary `json:"lines"`
	ProcessedAt  time.Time           `json:"processed_at"`
}

// RefundLineSummary describes one reversed order line.
type RefundLineSummary struct {
	OrderLineID uuid.UUID       `json:"order_line_id"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	Restock     bool            `json:"restock"`
}

// CashDrawerOpenedEvent is emitted when a till session begins.
type CashDrawerOpenedEvent struct {
	SessionID         uuid.UUID `json:"session_id"`
	OpenedBy          uuid.UUID `json:"opened_by"`
	OpeningTotalCents int64     `json:"opening_total_cents"`
	OpenedAt          time.Time `json:"opened_at"`
}

// CashDrawerClosedEvent is emitted when a till session is counted out.
type CashDrawerClosedEvent struct {
	SessionID            uuid.UUID `json:"session_id"`
	ClosedBy             uuid.UUID `json:"closed_by"`
	OpeningTotalCents    int64     `json:"opening_total_cents"`
	ClosingTotalCents    int64     `json:"closing_total_cents"`
	ExpectedClosingCents int64     `json:"expected_closing_cents"`
	DiscrepancyCents     int64     `json:"discrepancy_cents"`
	ClosedAt             time.Time `json:"closed_at"`
}

// TerminalReconciledEvent is emitted when card terminal totals are recorded.
type TerminalReconciledEvent struct {
	SessionID              uuid.UUID `json:"session_id"`
	ReconciliationID       uuid.UUID `json:"reconciliation_id"`
	DebitDiscrepancyCents  int64     `json:"debit_discrepancy_cents"`
	CreditDiscrepancyCents int64     `json:"credit_discrepancy_cents"`
}

// AggregateKey methods name the id each event's outbox row is keyed by.

func (e OrderCompletedEvent) AggregateKey() uuid.UUID     { return e.OrderID }
func (e OrderCancelledEvent) AggregateKey() uuid.UUID     { return e.OrderID }
func (e OrderRefundedEvent) AggregateKey() uuid.UUID      { return e.RefundID }
func (e CashDrawerOpenedEvent) AggregateKey() uuid.UUID   { return e.SessionID }
func (e CashDrawerClosedEvent) AggregateKey() uuid.UUID   { return e.SessionID }
func (e TerminalReconciledEvent) AggregateKey() uuid.UUID { return e.SessionID }
