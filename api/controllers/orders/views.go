package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalpayments "github.com/angelmondragon/settlez-backend/internal/payments"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// OrderView is the wire shape of an order aggregate.
type OrderView struct {
	ID                    uuid.UUID           `json:"id"`
	OrderNumber           string              `json:"order_number"`
	Status                enums.OrderStatus   `json:"status"`
	CustomerID            *uuid.UUID          `json:"customer_id,omitempty"`
	CreatedBy             uuid.UUID           `json:"created_by"`
	CashDrawerSessionID   *uuid.UUID          `json:"cash_drawer_session_id,omitempty"`
	Subtotal              decimal.Decimal     `json:"subtotal"`
	DiscountTotal         decimal.Decimal     `json:"discount_total"`
	TaxTotal              decimal.Decimal     `json:"tax_total"`
	Total                 decimal.Decimal     `json:"total"`
	AmountPaid            decimal.Decimal     `json:"amount_paid"`
	TaxExempt             bool                `json:"tax_exempt"`
	TaxExemptCertificate  *string             `json:"tax_exempt_certificate,omitempty"`
	Notes                 *string             `json:"notes,omitempty"`
	OverriddenDiscountIDs []uuid.UUID         `json:"overridden_discount_ids"`
	HeldAt                *time.Time          `json:"held_at,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
	Lines                 []LineView          `json:"lines"`
	Discounts             []OrderDiscountView `json:"discounts"`
	Payments              []PaymentView       `json:"payments"`
}

type LineView struct {
	ID             uuid.UUID          `json:"id"`
	SellableType   enums.SellableType `json:"sellable_type"`
	SellableID     uuid.UUID          `json:"sellable_id"`
	Code           string             `json:"code"`
	Name           string             `json:"name"`
	UnitPrice      decimal.Decimal    `json:"unit_price"`
	Quantity       int                `json:"quantity"`
	TaxRate        decimal.Decimal    `json:"tax_rate"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	TaxAmount      decimal.Decimal    `json:"tax_amount"`
	LineTotal      decimal.Decimal    `json:"line_total"`
	Discounts      []LineDiscountView `json:"discounts"`
}

type LineDiscountView struct {
	ID               uuid.UUID          `json:"id"`
	DiscountID       *uuid.UUID         `json:"discount_id,omitempty"`
	Name             string             `json:"name"`
	Type             enums.DiscountType `json:"type"`
	Value            decimal.Decimal    `json:"value"`
	Amount           decimal.Decimal    `json:"amount"`
	AutoApplied      bool               `json:"auto_applied"`
	ExcludedQuantity int                `json:"excluded_quantity"`
}

type OrderDiscountView struct {
	ID      uuid.UUID                `json:"id"`
	Name    string                   `json:"name"`
	Type    enums.DiscountType       `json:"type"`
	Value   decimal.Decimal          `json:"value"`
	Scope   enums.OrderDiscountScope `json:"scope"`
	LineIDs []uuid.UUID              `json:"line_ids"`
	Amount  decimal.Decimal          `json:"amount"`
}

type PaymentView struct {
	ID                uuid.UUID           `json:"id"`
	Method            enums.PaymentMethod `json:"method"`
	Amount            decimal.Decimal     `json:"amount"`
	AmountTendered    decimal.Decimal     `json:"amount_tendered"`
	ChangeGiven       decimal.Decimal     `json:"change_given"`
	GiftCertificateID *uuid.UUID          `json:"gift_certificate_id,omitempty"`
	Reference         *string             `json:"reference,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// PaymentResultView reports the order and its settlement state after a tender change.
type PaymentResultView struct {
	Order           OrderView       `json:"order"`
	Payment         *PaymentView    `json:"payment,omitempty"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	BalanceDue      decimal.Decimal `json:"balance_due"`
	PaymentComplete bool            `json:"payment_complete"`
}

type EventView struct {
	ID        uuid.UUID            `json:"id"`
	EventType enums.OrderEventType `json:"event_type"`
	ActorID   uuid.UUID            `json:"actor_id"`
	Payload   json.RawMessage      `json:"payload,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

type RefundView struct {
	ID           uuid.UUID        `json:"id"`
	RefundNumber string           `json:"refund_number"`
	OrderID      uuid.UUID        `json:"order_id"`
	Reason       string           `json:"reason"`
	Total        decimal.Decimal  `json:"total"`
	ProcessedBy  uuid.UUID        `json:"processed_by"`
	CreatedAt    time.Time        `json:"created_at"`
	Lines        []RefundLineView `json:"lines"`
}

type RefundLineView struct {
	ID          uuid.UUID       `json:"id"`
	OrderLineID uuid.UUID       `json:"order_line_id"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	Restock     bool            `json:"restock"`
}

// RefundResultView carries the refund and the order's resulting status.
type RefundResultView struct {
	Refund RefundView `json:"refund"`
	Order  OrderView  `json:"order"`
}

func toOrderView(order *models.Order) OrderView {
	if order == nil {
		return OrderView{}
	}
	view := OrderView{
		ID:                    order.ID,
		OrderNumber:           order.OrderNumber,
		Status:                order.Status,
		CustomerID:            order.CustomerID,
		CreatedBy:             order.CreatedBy,
		CashDrawerSessionID:   order.CashDrawerSessionID,
		Subtotal:              order.Subtotal,
		DiscountTotal:         order.DiscountTotal,
		TaxTotal:              order.TaxTotal,
		Total:                 order.Total,
		AmountPaid:            decimal.Zero,
		TaxExempt:             order.TaxExempt,
		TaxExemptCertificate:  order.TaxExemptCertificate,
		Notes:                 order.Notes,
		OverriddenDiscountIDs: uuidsOrEmpty(order.OverriddenDiscountIDs),
		HeldAt:                order.HeldAt,
		CompletedAt:           order.CompletedAt,
		CancelledAt:           order.CancelledAt,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
		Lines:                 make([]LineView, 0, len(order.Lines)),
		Discounts:             make([]OrderDiscountView, 0, len(order.Discounts)),
		Payments:              make([]PaymentView, 0, len(order.Payments)),
	}
	for _, line := range order.Lines {
		lv := LineView{
			ID:             line.ID,
			SellableType:   line.SellableType,
			SellableID:     line.SellableID,
			Code:           line.Code,
			Name:           line.Name,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
			TaxRate:        line.TaxRate,
			DiscountAmount: line.DiscountAmount,
			TaxAmount:      line.TaxAmount,
			LineTotal:      line.LineTotal,
			Discounts:      make([]LineDiscountView, 0, len(line.Discounts)),
		}
		for _, d := range line.Discounts {
			lv.Discounts = append(lv.Discounts, LineDiscountView{
				ID:               d.ID,
				DiscountID:       d.DiscountID,
				Name:             d.Name,
				Type:             d.Type,
				Value:            d.Value,
				Amount:           d.Amount,
				AutoApplied:      d.AutoApplied,
				ExcludedQuantity: d.ExcludedQuantity,
			})
		}
		view.Lines = append(view.Lines, lv)
	}
	for _, d := range order.Discounts {
		view.Discounts = append(view.Discounts, OrderDiscountView{
			ID:      d.ID,
			Name:    d.Name,
			Type:    d.Type,
			Value:   d.Value,
			Scope:   d.Scope,
			LineIDs: uuidsOrEmpty(d.LineIDs),
			Amount:  d.Amount,
		})
	}
	for i := range order.Payments {
		view.Payments = append(view.Payments, toPaymentView(&order.Payments[i]))
		view.AmountPaid = view.AmountPaid.Add(order.Payments[i].Amount)
	}
	return view
}

func toPaymentView(p *models.OrderPayment) PaymentView {
	return PaymentView{
		ID:                p.ID,
		Method:            p.Method,
		Amount:            p.Amount,
		AmountTendered:    p.AmountTendered,
		ChangeGiven:       p.ChangeGiven,
		GiftCertificateID: p.GiftCertificateID,
		Reference:         p.Reference,
		CreatedAt:         p.CreatedAt,
	}
}

func toPaymentResultView(result *internalpayments.Result) PaymentResultView {
	view := PaymentResultView{
		Order:           toOrderView(result.Order),
		AmountPaid:      result.AmountPaid,
		BalanceDue:      result.BalanceDue,
		PaymentComplete: result.PaymentComplete,
	}
	if result.Payment != nil {
		p := toPaymentView(result.Payment)
		view.Payment = &p
	}
	return view
}

func toEventViews(events []models.OrderEvent) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{
			ID:        e.ID,
			EventType: e.EventType,
			ActorID:   e.ActorID,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func toRefundView(r *models.Refund) RefundView {
	view := RefundView{
		ID:           r.ID,
		RefundNumber: r.RefundNumber,
		OrderID:      r.OrderID,
		Reason:       r.Reason,
		Total:        r.Total,
		ProcessedBy:  r.ProcessedBy,
		CreatedAt:    r.CreatedAt,
		Lines:        make([]RefundLineView, 0, len(r.Lines)),
	}
	for _, l := range r.Lines {
		view.Lines = append(view.Lines, RefundLineView{
			ID:          l.ID,
			OrderLineID: l.OrderLineID,
			Quantity:    l.Quantity,
			Amount:      l.Amount,
			Restock:     l.Restock,
		})
	}
	return view
}

func uuidsOrEmpty(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
