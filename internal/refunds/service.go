// Package refunds reverses settled orders. A refund covers part or all of
// one or more original lines and moves the order to partially_refunded or
// refunded.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/internal/catalog"
	"github.com/angelmondragon/settlez-backend/internal/discounts"
	"github.com/angelmondragon/settlez-backend/internal/numbering"
	"github.com/angelmondragon/settlez-backend/internal/orderevents"
	"github.com/angelmondragon/settlez-backend/internal/orders"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
	"github.com/angelmondragon/settlez-backend/pkg/money"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service processes and reads refunds.
type Service interface {
	ProcessRefund(ctx context.Context, input ProcessRefundInput) (*Result, error)
	List(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
}

// LineRequest selects part of an original order line. A nil Amount refunds
// the line's remaining amount pro rata to Quantity.
type LineRequest struct {
	OrderLineID uuid.UUID
	Quantity    int
	Amount      *decimal.Decimal
	Restock     bool
}

// ProcessRefundInput is one refund against one order.
type ProcessRefundInput struct {
	orders.Target
	Reason string
	Lines  []LineRequest
}

// Result carries the persisted refund and the order's new status.
type Result struct {
	Refund *models.Refund
	Order  *models.Order
}

// ServiceParams wires the refund service.
type ServiceParams struct {
	Repo    Repository
	Orders  orders.Repository
	Tx      txRunner
	Catalog catalog.Service
	Events  orderevents.Service
	Numbers numbering.Generator
	Outbox  outboxPublisher
	Metrics *metrics.SettlementMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	orders  orders.Repository
	tx      txRunner
	catalog catalog.Service
	events  orderevents.Service
	numbers numbering.Generator
	outbox  outboxPublisher
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds a refund service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("refund repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("order event service required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("document number generator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		tx:      params.Tx,
		catalog: params.Catalog,
		events:  params.Events,
		numbers: params.Numbers,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    logg,
		now:     now,
	}, nil
}

// remaining tracks what is still refundable on one original line.
type remaining struct {
	quantity int
	amount   decimal.Decimal
}

type refundPayload struct {
	RefundID     uuid.UUID                    `json:"refund_id"`
	RefundNumber string                       `json:"refund_number"`
	Total        decimal.Decimal              `json:"total"`
	Reason       string                       `json:"reason"`
	From         enums.OrderStatus            `json:"from"`
	To           enums.OrderStatus            `json:"to"`
	Lines        []payloads.RefundLineSummary `json:"lines"`
}

func (s *service) ProcessRefund(ctx context.Context, input ProcessRefundInput) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.Validation("order_id", "order id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.Validation("reason", "reason is required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.Validation("lines", "at least one line is required")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return lookupError(err, "order not found", "lock order")
		}
		if !order.Status.IsRefundable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not refundable").
				WithDetails(map[string]any{"status": order.Status})
		}

		prior, err := s.repo.WithTx(tx).ListByOrderID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load prior refunds")
		}
		left := remainingByLine(order, prior)

		refund := &models.Refund{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Reason:      reason,
			ProcessedBy: input.ActorID,
			Total:       decimal.Zero,
		}
		seen := make(map[uuid.UUID]struct{}, len(input.Lines))
		for i, req := range input.Lines {
			line, err := s.refundLine(order, left, seen, i, req)
			if err != nil {
				return err
			}
			refund.Lines = append(refund.Lines, *line)
			refund.Total = refund.Total.Add(line.Amount)
		}
		refunded := decimal.Zero
		for _, p := range prior {
			refunded = refunded.Add(p.Total)
		}
		if refundable := money.ClampZero(order.Total.Sub(refunded)); refund.Total.GreaterThan(refundable) {
			return pkgerrors.Validation("lines", "refund exceeds what remains of the order total").
				WithDetails(map[string]any{
					"field":      "lines",
					"reason":     "refund exceeds what remains of the order total",
					"refundable": refundable.StringFixed(2),
				})
		}

		number, err := s.numbers.Next(ctx, tx, numbering.KindRefund)
		if err != nil {
			return err
		}
		refund.RefundNumber = number
		if err := s.repo.WithTx(tx).Create(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
		}

		for _, line := range refund.Lines {
			if !line.Restock {
				continue
			}
			original := order.LineByID(line.OrderLineID)
			if err := s.catalog.AdjustStock(ctx, tx, original.SellableID, line.Quantity); err != nil {
				return err
			}
		}

		now := s.now()
		from := order.Status
		to := enums.OrderStatusRefunded
		event := enums.OrderEventRefunded
		for _, rem := range left {
			if rem.quantity > 0 {
				to = enums.OrderStatusPartiallyRefunded
				event = enums.OrderEventPartiallyRefunded
				break
			}
		}
		if err := orders.Transition(order, to, now); err != nil {
			return err
		}
		if err := s.orders.WithTx(tx).UpdateStatus(ctx, order, now); err != nil {
			return lookupError(err, "order not found", "update order status")
		}

		summaries := make([]payloads.RefundLineSummary, 0, len(refund.Lines))
		for _, line := range refund.Lines {
			summaries = append(summaries, payloads.RefundLineSummary{
				OrderLineID: line.OrderLineID,
				Quantity:    line.Quantity,
				Amount:      line.Amount,
				Restock:     line.Restock,
			})
		}
		if _, err := s.events.Record(ctx, tx, orderevents.RecordInput{
			OrderID: order.ID,
			ActorID: input.ActorID,
			Type:    event,
			Payload: refundPayload{
				RefundID:     refund.ID,
				RefundNumber: refund.RefundNumber,
				Total:        refund.Total,
				Reason:       refund.Reason,
				From:         from,
				To:           to,
				Lines:        summaries,
			},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			Actor:         outbox.Actor(input.ActorID),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderRefundedEvent{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				RefundID:     refund.ID,
				RefundNumber: refund.RefundNumber,
				OrderStatus:  string(to),
				Total:        refund.Total,
				Reason:       refund.Reason,
				Lines:        summaries,
				ProcessedAt:  now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order refunded event")
		}

		result = &Result{Refund: refund, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund()
	ctx = s.logg.WithOrderID(ctx, result.Order.ID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"refund_number": result.Refund.RefundNumber,
		"total":         result.Refund.Total.StringFixed(2),
		"status":        string(result.Order.Status),
	})
	s.logg.Info(ctx, "refund.processed")
	return result, nil
}

// refundLine validates one request against what is left on the original line
// and deducts it from left.
func (s *service) refundLine(order *models.Order, left map[uuid.UUID]*remaining, seen map[uuid.UUID]struct{}, idx int, req LineRequest) (*models.RefundLine, error) {
	field := fmt.Sprintf("lines[%d]", idx)
	original := order.LineByID(req.OrderLineID)
	if original == nil {
		return nil, pkgerrors.Validation(field+".order_line_id", "line does not belong to the order")
	}
	if _, dup := seen[req.OrderLineID]; dup {
		return nil, pkgerrors.Validation(field+".order_line_id", "line is listed more than once")
	}
	seen[req.OrderLineID] = struct{}{}

	rem := left[req.OrderLineID]
	if req.Quantity <= 0 {
		return nil, pkgerrors.Validation(field+".quantity", "quantity must be greater than zero")
	}
	if req.Quantity > rem.quantity {
		return nil, pkgerrors.Validation(field+".quantity", "quantity exceeds the refundable quantity").
			WithDetails(map[string]any{
				"field":     field + ".quantity",
				"reason":    "quantity exceeds the refundable quantity",
				"remaining": rem.quantity,
			})
	}

	var amount decimal.Decimal
	if req.Amount != nil {
		amount = money.Round2(*req.Amount)
	} else if req.Quantity == rem.quantity {
		amount = rem.amount
	} else {
		amount = money.Round2(rem.amount.Mul(decimal.NewFromInt(int64(req.Quantity))).Div(decimal.NewFromInt(int64(rem.quantity))))
	}
	if amount.Sign() <= 0 {
		return nil, pkgerrors.Validation(field+".amount", "amount must be greater than zero")
	}
	if amount.GreaterThan(rem.amount) {
		return nil, pkgerrors.Validation(field+".amount", "amount exceeds the refundable amount").
			WithDetails(map[string]any{
				"field":     field + ".amount",
				"reason":    "amount exceeds the refundable amount",
				"remaining": rem.amount.StringFixed(2),
			})
	}

	rem.quantity -= req.Quantity
	rem.amount = rem.amount.Sub(amount)

	return &models.RefundLine{
		ID:          uuid.New(),
		OrderLineID: original.ID,
		Quantity:    req.Quantity,
		Amount:      amount,
		Restock:     req.Restock && original.SellableType == enums.SellableProduct,
	}, nil
}

func (s *service) List(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.Validation("order_id", "order id is required")
	}
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return nil, lookupError(err, "order not found", "load order")
	}
	refunds, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	return refunds, nil
}

// remainingByLine starts every line at its settled quantity and what the
// customer paid for it (line total less its share of order-level discounts)
// and subtracts earlier refunds.
func remainingByLine(order *models.Order, prior []models.Refund) map[uuid.UUID]*remaining {
	shares := discounts.OrderDiscountShares(order)
	left := make(map[uuid.UUID]*remaining, len(order.Lines))
	for _, line := range order.Lines {
		paid := money.ClampZero(line.LineTotal.Sub(shares[line.ID]))
		left[line.ID] = &remaining{quantity: line.Quantity, amount: paid}
	}
	for _, refund := range prior {
		for _, line := range refund.Lines {
			rem, ok := left[line.OrderLineID]
			if !ok {
				continue
			}
			rem.quantity -= line.Quantity
			rem.amount = money.ClampZero(rem.amount.Sub(line.Amount))
		}
	}
	return left
}

func lookupError(err error, missing, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, missing)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
