package orders

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
	"github.com/angelmondragon/settlez-backend/internal/giftcertificates"
	"github.com/angelmondragon/settlez-backend/internal/lineitems"
	"github.com/angelmondragon/settlez-backend/internal/numbering"
	"github.com/angelmondragon/settlez-backend/internal/orderevents"
	"github.com/angelmondragon/settlez-backend/internal/totals"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
	"github.com/angelmondragon/settlez-backend/pkg/money"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/settlez-backend/pkg/types"
)

// Service exposes the order operations of the settlement engine. Every
// mutating call runs in one transaction and appends exactly one order event.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Events(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)

	AddLine(ctx context.Context, input AddLineInput) (*models.Order, error)
	UpdateLineQuantity(ctx context.Context, input UpdateLineQuantityInput) (*models.Order, error)
	RemoveLine(ctx context.Context, input LineInput) (*models.Order, error)

	ApplyOrderDiscount(ctx context.Context, input ApplyOrderDiscountInput) (*models.Order, error)
	ApplyLineDiscount(ctx context.Context, input ApplyLineDiscountInput) (*models.Order, error)
	RemoveOrderDiscount(ctx context.Context, input DiscountInput) (*models.Order, error)
	RemoveAutoDiscount(ctx context.Context, input DiscountInput) (*models.Order, error)
	RestoreAutoDiscount(ctx context.Context, input DiscountInput) (*models.Order, error)
	ExcludeOneUnit(ctx context.Context, input DiscountInput) (*models.Order, error)
	RestoreOneUnit(ctx context.Context, input DiscountInput) (*models.Order, error)

	SetCustomer(ctx context.Context, input SetCustomerInput) (*models.Order, error)
	SetTaxExempt(ctx context.Context, input SetTaxExemptInput) (*models.Order, error)
	SetNotes(ctx context.Context, input SetNotesInput) (*models.Order, error)
	RecalculateTotals(ctx context.Context, target Target) (*models.Order, error)

	Hold(ctx context.Context, target Target) (*models.Order, error)
	Resume(ctx context.Context, target Target) (*models.Order, error)
	Complete(ctx context.Context, target Target) (*models.Order, error)
	Cancel(ctx context.Context, target Target) (*models.Order, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Catalog   catalog.Service
	Discounts discounts.Repository
	Certs     giftcertificates.Service
	Events    orderevents.Service
	Numbers   numbering.Generator
	Sessions  SessionFinder
	Outbox    outboxPublisher
	Metrics   *metrics.SettlementMetrics
	Logger    *logger.Logger
	Tolerance decimal.Decimal
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	catalog   catalog.Service
	discounts discounts.Repository
	certs     giftcertificates.Service
	events    orderevents.Service
	numbers   numbering.Generator
	sessions  SessionFinder
	outbox    outboxPublisher
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discount repository required")
	}
	if params.Certs == nil {
		return nil, fmt.Errorf("gift certificate service required")
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
	tolerance := params.Tolerance
	if tolerance.Sign() <= 0 {
		tolerance = money.PaymentTolerance
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		catalog:   params.Catalog,
		discounts: params.Discounts,
		certs:     params.Certs,
		events:    params.Events,
		numbers:   params.Numbers,
		sessions:  params.Sessions,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      logg,
		tolerance: tolerance,
		now:       now,
	}, nil
}

type change struct {
	event   enums.OrderEventType
	payload any
}

type mutation func(tx *gorm.DB, order *models.Order, now time.Time) (*change, error)

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if input.CustomerID != nil {
			if _, err := s.catalog.Customer(ctx, tx, *input.CustomerID); err != nil {
				return err
			}
		}

		number, err := s.numbers.Next(ctx, tx, numbering.KindOrder)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}

		var sessionID *uuid.UUID
		if s.sessions != nil {
			sessionID, err = s.sessions.OpenSessionID(ctx, tx)
			if err != nil {
				return err
			}
		}

		order := &models.Order{
			ID:                    uuid.New(),
			OrderNumber:           number,
			Status:                enums.OrderStatusDraft,
			CustomerID:            input.CustomerID,
			CreatedBy:             input.ActorID,
			CashDrawerSessionID:   sessionID,
			Subtotal:              decimal.Zero,
			DiscountTotal:         decimal.Zero,
			TaxTotal:              decimal.Zero,
			Total:                 decimal.Zero,
			Notes:                 cleanText(input.Notes),
			OverriddenDiscountIDs: types.UUIDSet{},
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.record(ctx, tx, order.ID, input.ActorID, enums.OrderEventCreated, map[string]any{
			"order_number": order.OrderNumber,
		}); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, created.ID.String())
	s.logg.Info(ctx, "order.created")
	return created, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.Validation("order_id", "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, repoError(err, "load order")
	}
	return order, nil
}

func (s *service) Events(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.events.List(ctx, orderID)
}

func (s *service) AddLine(ctx context.Context, input AddLineInput) (*models.Order, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.Validation("quantity", "quantity must be greater than zero")
	}
	return s.mutate(ctx, input.Target, func(tx *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		item, err := s.catalog.ResolveSellable(ctx, tx, input.SellableType, input.SellableID)
		if err != nil {
			return nil, err
		}
		if input.SellableType == enums.SellableGiftCertificate {
			if input.Quantity != 1 {
				return nil, pkgerrors.Validation("quantity", "a gift certificate is sold one at a time")
			}
			if hasSellable(order, input.SellableType, input.SellableID) {
				return nil, pkgerrors.Validation("sellable_id", "gift certificate is already on this order")
			}
		}

		customer, err := s.customerFor(ctx, tx, order)
		if err != nil {
			return nil, err
		}
		line, merged, err := lineitems.AddLine(order, item, input.Quantity, lineitems.ResolveTaxRate(order, customer, item))
		if err != nil {
			return nil, err
		}
		return &change{
			event: enums.OrderEventLineAdded,
			payload: linePayload{
				LineID:       line.ID,
				SellableType: line.SellableType,
				SellableID:   line.SellableID,
				Quantity:     line.Quantity,
				Merged:       merged,
			},
		}, nil
	})
}

func (s *service) UpdateLineQuantity(ctx context.Context, input UpdateLineQuantityInput) (*models.Order, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.Validation("quantity", "quantity must be greater than zero")
	}
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		line := order.LineByID(input.LineID)
		if line == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
		}
		if line.SellableType == enums.SellableGiftCertificate && input.Quantity != 1 {
			return nil, pkgerrors.Validation("quantity", "a gift certificate is sold one at a time")
		}
		previous := line.Quantity
		if previous == input.Quantity {
			return nil, nil
		}
		if err := lineitems.UpdateQuantity(line, input.Quantity); err != nil {
			return nil, err
		}
		return &change{
			event: enums.OrderEventLineUpdated,
			payload: linePayload{
				LineID:   line.ID,
				Quantity: line.Quantity,
				Previous: previous,
			},
		}, nil
	})
}

func (s *service) RemoveLine(ctx context.Context, input LineInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		removed, ok := lineitems.RemoveLine(order, input.LineID)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
		}
		for i := range order.Discounts {
			order.Discounts[i].LineIDs, _ = order.Discounts[i].LineIDs.Remove(removed.ID)
		}
		return &change{
			event: enums.OrderEventLineRemoved,
			payload: linePayload{
				LineID:       removed.ID,
				SellableType: removed.SellableType,
				SellableID:   removed.SellableID,
				Quantity:     removed.Quantity,
			},
		}, nil
	})
}

func (s *service) ApplyOrderDiscount(ctx context.Context, input ApplyOrderDiscountInput) (*models.Order, error) {
	if err := validateDiscountValue(input.Type, input.Value); err != nil {
		return nil, err
	}
	if input.Type == enums.DiscountTypeFixedPerItem {
		return nil, pkgerrors.Validation("type", "order discounts are percentage or fixed_total")
	}
	scope := input.Scope
	if scope == "" {
		scope = enums.OrderDiscountScopeAllItems
	}
	if !scope.IsValid() {
		return nil, pkgerrors.Validation("scope", fmt.Sprintf("invalid discount scope %q", scope))
	}
	if scope == enums.OrderDiscountScopeSpecificItems && len(input.LineIDs) == 0 {
		return nil, pkgerrors.Validation("line_ids", "specific_items discounts need at least one line")
	}

	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		lineIDs := types.UUIDSet{}
		if scope == enums.OrderDiscountScopeSpecificItems {
			for _, id := range input.LineIDs {
				if order.LineByID(id) == nil {
					return nil, pkgerrors.Validation("line_ids", fmt.Sprintf("line %s is not on this order", id))
				}
				lineIDs, _ = lineIDs.Add(id)
			}
		}

		value := input.Value
		od := models.OrderDiscount{
			ID:        uuid.New(),
			OrderID:   order.ID,
			Name:      discountName(input.Name),
			Type:      input.Type,
			Value:     value,
			Scope:     scope,
			LineIDs:   lineIDs,
			Amount:    decimal.Zero,
			CreatedBy: input.ActorID,
		}
		order.Discounts = append(order.Discounts, od)
		return &change{
			event: enums.OrderEventDiscountApplied,
			payload: discountPayload{
				DiscountID: od.ID,
				Name:       od.Name,
				Type:       od.Type,
				Value:      &value,
				Source:     "order",
			},
		}, nil
	})
}

func (s *service) ApplyLineDiscount(ctx context.Context, input ApplyLineDiscountInput) (*models.Order, error) {
	if err := validateDiscountValue(input.Type, input.Value); err != nil {
		return nil, err
	}
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		line := order.LineByID(input.LineID)
		if line == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
		}
		if !line.SellableType.Discountable() {
			return nil, pkgerrors.Validation("line_id", fmt.Sprintf("%s lines cannot be discounted", line.SellableType))
		}

		value := input.Value
		alloc := models.OrderLineDiscount{
			ID:          uuid.New(),
			OrderLineID: line.ID,
			Name:        discountName(input.Name),
			Type:        input.Type,
			Value:       value,
			Amount:      decimal.Zero,
		}
		line.Discounts = append(line.Discounts, alloc)
		lineID := line.ID
		return &change{
			event: enums.OrderEventDiscountApplied,
			payload: discountPayload{
				DiscountID: alloc.ID,
				LineID:     &lineID,
				Name:       alloc.Name,
				Type:       alloc.Type,
				Value:      &value,
				Source:     "line",
			},
		}, nil
	})
}

// RemoveOrderDiscount drops an order discount or a line allocation by id.
// Removing an auto-applied allocation overrides its store discount on the order.
func (s *service) RemoveOrderDiscount(ctx context.Context, input DiscountInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		for i := range order.Discounts {
			if order.Discounts[i].ID == input.DiscountID {
				removed := order.Discounts[i]
				order.Discounts = append(order.Discounts[:i], order.Discounts[i+1:]...)
				return &change{
					event:   enums.OrderEventDiscountRemoved,
					payload: discountPayload{DiscountID: removed.ID, Name: removed.Name, Source: "order"},
				}, nil
			}
		}

		line, alloc := discounts.FindAllocation(order, input.DiscountID)
		if alloc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount not found on order")
		}
		lineID := line.ID
		if alloc.AutoApplied && alloc.DiscountID != nil {
			sourceID := *alloc.DiscountID
			name := alloc.Name
			discounts.RemoveAutoDiscount(order, sourceID)
			return &change{
				event:   enums.OrderEventDiscountRemoved,
				payload: discountPayload{DiscountID: sourceID, LineID: &lineID, Name: name, Source: "auto"},
			}, nil
		}

		removed := *alloc
		kept := line.Discounts[:0]
		for _, candidate := range line.Discounts {
			if candidate.ID != removed.ID {
				kept = append(kept, candidate)
			}
		}
		line.Discounts = kept
		return &change{
			event:   enums.OrderEventDiscountRemoved,
			payload: discountPayload{DiscountID: removed.ID, LineID: &lineID, Name: removed.Name, Source: "line"},
		}, nil
	})
}

func (s *service) RemoveAutoDiscount(ctx context.Context, input DiscountInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		if !discounts.RemoveAutoDiscount(order, input.DiscountID) {
			return nil, nil
		}
		return &change{
			event:   enums.OrderEventDiscountRemoved,
			payload: discountPayload{DiscountID: input.DiscountID, Source: "auto"},
		}, nil
	})
}

func (s *service) RestoreAutoDiscount(ctx context.Context, input DiscountInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		if !discounts.RestoreAutoDiscount(order, input.DiscountID) {
			return nil, nil
		}
		return &change{
			event:   enums.OrderEventDiscountApplied,
			payload: discountPayload{DiscountID: input.DiscountID, Source: "auto"},
		}, nil
	})
}

func (s *service) ExcludeOneUnit(ctx context.Context, input DiscountInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		line, alloc := discounts.FindAllocation(order, input.DiscountID)
		if alloc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount allocation not found")
		}
		if !discounts.ExcludeOneUnit(alloc, line.Quantity) {
			return nil, nil
		}
		return unitChange(enums.OrderEventDiscountUnitExclude, line, alloc), nil
	})
}

func (s *service) RestoreOneUnit(ctx context.Context, input DiscountInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		line, alloc := discounts.FindAllocation(order, input.DiscountID)
		if alloc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount allocation not found")
		}
		if !discounts.RestoreOneUnit(alloc) {
			return nil, nil
		}
		return unitChange(enums.OrderEventDiscountUnitRestore, line, alloc), nil
	})
}

func unitChange(event enums.OrderEventType, line *models.OrderLine, alloc *models.OrderLineDiscount) *change {
	lineID := line.ID
	excluded := alloc.ExcludedQuantity
	return &change{
		event: event,
		payload: discountPayload{
			DiscountID:   alloc.ID,
			LineID:       &lineID,
			Name:         alloc.Name,
			Source:       "line",
			ExcludedUnit: &excluded,
		},
	}
}

func (s *service) SetCustomer(ctx context.Context, input SetCustomerInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(tx *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		if sameUUID(order.CustomerID, input.CustomerID) {
			return nil, nil
		}
		if input.CustomerID != nil {
			if _, err := s.catalog.Customer(ctx, tx, *input.CustomerID); err != nil {
				return nil, err
			}
		}
		previous := order.CustomerID
		order.CustomerID = input.CustomerID
		if err := s.retaxLines(ctx, tx, order); err != nil {
			return nil, err
		}
		return &change{
			event: enums.OrderEventCustomerChanged,
			payload: map[string]any{
				"from": previous,
				"to":   input.CustomerID,
			},
		}, nil
	})
}

func (s *service) SetTaxExempt(ctx context.Context, input SetTaxExemptInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(tx *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		certificate := cleanText(input.Certificate)
		if !input.TaxExempt {
			certificate = nil
		}
		if order.TaxExempt == input.TaxExempt && sameText(order.TaxExemptCertificate, certificate) {
			return nil, nil
		}
		order.TaxExempt = input.TaxExempt
		order.TaxExemptCertificate = certificate
		if err := s.retaxLines(ctx, tx, order); err != nil {
			return nil, err
		}
		return &change{
			event: enums.OrderEventTaxExemptChanged,
			payload: map[string]any{
				"tax_exempt":  order.TaxExempt,
				"certificate": certificate,
			},
		}, nil
	})
}

func (s *service) SetNotes(ctx context.Context, input SetNotesInput) (*models.Order, error) {
	return s.mutate(ctx, input.Target, func(_ *gorm.DB, order *models.Order, _ time.Time) (*change, error) {
		notes := cleanText(input.Notes)
		if sameText(order.Notes, notes) {
			return nil, nil
		}
		order.Notes = notes
		return &change{
			event:   enums.OrderEventNotesChanged,
			payload: map[string]any{"notes": notes},
		}, nil
	})
}

// RecalculateTotals reprices the order against the current store discounts.
// An event is appended only when a total moved.
func (s *service) RecalculateTotals(ctx context.Context, target Target) (*models.Order, error) {
	return s.mutate(ctx, target, func(tx *gorm.DB, order *models.Order, now time.Time) (*change, error) {
		before := snapshotTotals(order)
		if err := s.reprice(ctx, tx, order, now); err != nil {
			return nil, err
		}
		after := snapshotTotals(order)
		if before == after {
			return nil, nil
		}
		return &change{
			event: enums.OrderEventTotalsRecalculated,
			payload: totalsPayload{
				Subtotal:      order.Subtotal,
				DiscountTotal: order.DiscountTotal,
				TaxTotal:      order.TaxTotal,
				Total:         order.Total,
			},
		}, nil
	})
}

func (s *service) Hold(ctx context.Context, target Target) (*models.Order, error) {
	return s.transition(ctx, target, enums.OrderStatusHeld, enums.OrderEventHeld)
}

func (s *service) Resume(ctx context.Context, target Target) (*models.Order, error) {
	return s.transition(ctx, target, enums.OrderStatusDraft, enums.OrderEventResumed)
}

func (s *service) transition(ctx context.Context, target Target, to enums.OrderStatus, event enums.OrderEventType) (*models.Order, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lock(ctx, tx, target.OrderID)
		if err != nil {
			return err
		}
		from := order.Status
		now := s.now()
		if err := Transition(order, to, now); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, order, now); err != nil {
			return repoError(err, "update order status")
		}
		if err := s.record(ctx, tx, order.ID, target.ActorID, event, statusPayload{From: from, To: to}); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Complete settles the order: it must carry at least one line and be paid
// within tolerance. Sold gift certificates are activated and tracked stock is
// drawn down in the same transaction.
func (s *service) Complete(ctx context.Context, target Target) (*models.Order, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lock(ctx, tx, target.OrderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order, enums.OrderStatusCompleted); err != nil {
			return err
		}
		if len(order.Lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no lines")
		}

		now := s.now()
		if err := s.reprice(ctx, tx, order, now); err != nil {
			return err
		}
		if err := s.save(ctx, tx, order, now); err != nil {
			return err
		}
		if !totals.PaymentComplete(order, s.tolerance) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not fully paid").
				WithDetails(map[string]any{
					"total":       order.Total.StringFixed(2),
					"amount_paid": totals.AmountPaid(order).StringFixed(2),
					"balance_due": totals.BalanceDue(order).StringFixed(2),
				})
		}

		for _, line := range order.Lines {
			switch line.SellableType {
			case enums.SellableGiftCertificate:
				if _, err := s.certs.ActivateSold(ctx, tx, line.SellableID, order.ID, now); err != nil {
					return err
				}
			case enums.SellableProduct:
				if err := s.catalog.AdjustStock(ctx, tx, line.SellableID, -line.Quantity); err != nil {
					return err
				}
			}
		}

		from := order.Status
		if err := Transition(order, enums.OrderStatusCompleted, now); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, order, now); err != nil {
			return repoError(err, "complete order")
		}
		if err := s.record(ctx, tx, order.ID, target.ActorID, enums.OrderEventCompleted, statusPayload{From: from, To: order.Status}); err != nil {
			return err
		}

		paymentsSummary := make([]payloads.PaymentSummary, 0, len(order.Payments))
		for _, p := range order.Payments {
			paymentsSummary = append(paymentsSummary, payloads.PaymentSummary{Method: string(p.Method), Amount: p.Amount})
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.Actor(target.ActorID),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderCompletedEvent{
				OrderID:             order.ID,
				OrderNumber:         order.OrderNumber,
				CustomerID:          order.CustomerID,
				CashDrawerSessionID: order.CashDrawerSessionID,
				Subtotal:            order.Subtotal,
				DiscountTotal:       order.DiscountTotal,
				TaxTotal:            order.TaxTotal,
				Total:               order.Total,
				Payments:            paymentsSummary,
				CompletedAt:         now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order completed event")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOrderCompleted()
	ctx = s.logg.WithOrderID(ctx, result.ID.String())
	ctx = s.logg.WithField(ctx, "total", result.Total.StringFixed(2))
	s.logg.Info(ctx, "order.completed")
	return result, nil
}

// Cancel abandons a draft or held order and credits every gift certificate
// tender back to its certificate.
func (s *service) Cancel(ctx context.Context, target Target) (*models.Order, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lock(ctx, tx, target.OrderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order, enums.OrderStatusCancelled); err != nil {
			return err
		}

		reversed := make([]uuid.UUID, 0)
		for _, p := range order.Payments {
			if p.Method != enums.PaymentMethodGiftCertificate || p.GiftCertificateID == nil {
				continue
			}
			if _, err := s.certs.Restore(ctx, tx, *p.GiftCertificateID, p.Amount); err != nil {
				return err
			}
			reversed = append(reversed, *p.GiftCertificateID)
		}

		now := s.now()
		from := order.Status
		if err := Transition(order, enums.OrderStatusCancelled, now); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, order, now); err != nil {
			return repoError(err, "cancel order")
		}
		if err := s.record(ctx, tx, order.ID, target.ActorID, enums.OrderEventCancelled, map[string]any{
			"from":                       from,
			"reversed_gift_certificates": reversed,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.Actor(target.ActorID),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderCancelledEvent{
				OrderID:                 order.ID,
				OrderNumber:             order.OrderNumber,
				ReversedGiftCertificate: reversed,
				CancelledAt:             now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order cancelled event")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOrderCancelled()
	ctx = s.logg.WithOrderID(ctx, result.ID.String())
	s.logg.Info(ctx, "order.cancelled")
	return result, nil
}

// mutate runs fn against the locked, open order. A nil change means fn found
// nothing to do and the order is returned without a write.
func (s *service) mutate(ctx context.Context, target Target, fn mutation) (*models.Order, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lock(ctx, tx, target.OrderID)
		if err != nil {
			return err
		}
		if err := EnsureOpen(order); err != nil {
			return err
		}

		now := s.now()
		ch, err := fn(tx, order, now)
		if err != nil {
			return err
		}
		if ch == nil {
			result = order
			return nil
		}

		if err := s.reprice(ctx, tx, order, now); err != nil {
			return err
		}
		if err := s.save(ctx, tx, order, now); err != nil {
			return err
		}
		if err := s.record(ctx, tx, order.ID, target.ActorID, ch.event, ch.payload); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) lock(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, repoError(err, "lock order")
	}
	return order, nil
}

func (s *service) reprice(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	active, err := s.discounts.WithTx(tx).ListActive(ctx, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store discounts")
	}
	discounts.AutoApply(order, active, now)
	totals.Recalculate(order)
	return nil
}

func (s *service) save(ctx context.Context, tx *gorm.DB, order *models.Order, at time.Time) error {
	if err := s.repo.WithTx(tx).SaveAggregate(ctx, order, at); err != nil {
		return repoError(err, "save order")
	}
	return nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, orderID, actorID uuid.UUID, event enums.OrderEventType, payload any) error {
	_, err := s.events.Record(ctx, tx, orderevents.RecordInput{
		OrderID: orderID,
		ActorID: actorID,
		Type:    event,
		Payload: payload,
	})
	return err
}

func (s *service) customerFor(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Customer, error) {
	if order.CustomerID == nil {
		return nil, nil
	}
	customer, err := s.catalog.Customer(ctx, tx, *order.CustomerID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return customer, nil
}

// retaxLines re-resolves every line's tax rate after the customer or the
// exemption changed. Lines whose sellable is gone keep their rate unless the
// order or customer decides the rate on its own.
func (s *service) retaxLines(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	customer, err := s.customerFor(ctx, tx, order)
	if err != nil {
		return err
	}
	customerDecides := order.TaxExempt || (customer != nil && customer.TaxCode != nil)

	for i := range order.Lines {
		line := &order.Lines[i]
		if lineitems.NeverTaxed(line.SellableType) {
			line.TaxRate = decimal.Zero
			line.TaxCodeID = nil
			continue
		}
		var item lineitems.Sellable
		resolved, err := s.catalog.ResolveSellable(ctx, tx, line.SellableType, line.SellableID)
		switch {
		case err == nil:
			item = resolved
		case pkgerrors.HasCode(err, pkgerrors.CodeNotFound), pkgerrors.HasCode(err, pkgerrors.CodeValidation):
			if !customerDecides {
				continue
			}
		default:
			return err
		}
		selection := lineitems.ResolveTaxRate(order, customer, item)
		line.TaxRate = selection.Rate
		line.TaxCodeID = selection.TaxCodeID
	}
	return nil
}

func repoError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func validateDiscountValue(kind enums.DiscountType, value decimal.Decimal) error {
	if !kind.IsValid() {
		return pkgerrors.Validation("type", fmt.Sprintf("invalid discount type %q", kind))
	}
	if value.Sign() <= 0 {
		return pkgerrors.Validation("value", "discount value must be greater than zero")
	}
	if kind == enums.DiscountTypePercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return pkgerrors.Validation("value", "percentage cannot exceed 100")
	}
	return nil
}

func discountName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Manual discount"
	}
	return name
}

func hasSellable(order *models.Order, kind enums.SellableType, id uuid.UUID) bool {
	for _, line := range order.Lines {
		if line.SellableType == kind && line.SellableID == id {
			return true
		}
	}
	return false
}

type totalsSnapshot struct {
	subtotal, discount, tax, total string
}

func snapshotTotals(order *models.Order) totalsSnapshot {
	return totalsSnapshot{
		subtotal: order.Subtotal.StringFixed(2),
		discount: order.DiscountTotal.StringFixed(2),
		tax:      order.TaxTotal.StringFixed(2),
		total:    order.Total.StringFixed(2),
	}
}

func cleanText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
