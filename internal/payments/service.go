// Package payments records tenders against open orders. Cash is rounded to
// the configured increment and gift certificates are redeemed under lock in
// the same transaction as the payment row.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/internal/giftcertificates"
	"github.com/angelmondragon/settlez-backend/internal/orderevents"
	"github.com/angelmondragon/settlez-backend/internal/orders"
	"github.com/angelmondragon/settlez-backend/internal/totals"
	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
	"github.com/angelmondragon/settlez-backend/pkg/money"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service adds and removes order tenders.
type Service interface {
	AddPayment(ctx context.Context, input AddPaymentInput) (*Result, error)
	RemovePayment(ctx context.Context, input RemovePaymentInput) (*Result, error)
}

// AddPaymentInput describes one tender. Amount may be omitted for cash, in
// which case the order's balance due is charged.
type AddPaymentInput struct {
	orders.Target
	Method              enums.PaymentMethod
	Amount              *decimal.Decimal
	AmountTendered      *decimal.Decimal
	GiftCertificateCode string
	Reference           *string
}

// RemovePaymentInput references a recorded tender.
type RemovePaymentInput struct {
	orders.Target
	PaymentID uuid.UUID
}

// Result carries the order after the tender change and its payment state.
type Result struct {
	Order           *models.Order
	Payment         *models.OrderPayment
	AmountPaid      decimal.Decimal
	BalanceDue      decimal.Decimal
	PaymentComplete bool
}

// ServiceParams wires the payment service.
type ServiceParams struct {
	Orders     orders.Repository
	Tx         txRunner
	Certs      giftcertificates.Service
	Events     orderevents.Service
	Sessions   orders.SessionFinder
	Metrics    *metrics.SettlementMetrics
	Logger     *logger.Logger
	Settlement config.SettlementConfig
	Now        func() time.Time
}

type service struct {
	orders    orders.Repository
	tx        txRunner
	certs     giftcertificates.Service
	events    orderevents.Service
	sessions  orders.SessionFinder
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger
	tolerance decimal.Decimal
	increment decimal.Decimal
	now       func() time.Time
}

// NewService builds a payment service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Certs == nil {
		return nil, fmt.Errorf("gift certificate service required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("order event service required")
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
		orders:    params.Orders,
		tx:        params.Tx,
		certs:     params.Certs,
		events:    params.Events,
		sessions:  params.Sessions,
		metrics:   params.Metrics,
		logg:      logg,
		tolerance: params.Settlement.Tolerance(),
		increment: params.Settlement.Increment(),
		now:       now,
	}, nil
}

type paymentPayload struct {
	PaymentID         uuid.UUID           `json:"payment_id"`
	Method            enums.PaymentMethod `json:"method"`
	Amount            decimal.Decimal     `json:"amount"`
	AmountTendered    decimal.Decimal     `json:"amount_tendered"`
	ChangeGiven       decimal.Decimal     `json:"change_given"`
	GiftCertificateID *uuid.UUID          `json:"gift_certificate_id,omitempty"`
}

func (s *service) AddPayment(ctx context.Context, input AddPaymentInput) (*Result, error) {
	if err := validateTarget(input.Target); err != nil {
		return nil, err
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.Validation("method", fmt.Sprintf("invalid payment method %q", input.Method))
	}
	if input.Method == enums.PaymentMethodGiftCertificate && strings.TrimSpace(input.GiftCertificateCode) == "" {
		return nil, pkgerrors.Validation("gift_certificate_code", "gift certificate code is required")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return lookupError(err)
		}
		if err := orders.EnsureOpen(order); err != nil {
			return err
		}

		payment, err := s.buildPayment(order, input)
		if err != nil {
			return err
		}

		if payment.Method == enums.PaymentMethodGiftCertificate {
			cert, err := s.certs.Redeem(ctx, tx, input.GiftCertificateCode, payment.Amount)
			if err != nil {
				return err
			}
			payment.GiftCertificateID = &cert.ID
		}

		if order.CashDrawerSessionID == nil && s.sessions != nil {
			sessionID, err := s.sessions.OpenSessionID(ctx, tx)
			if err != nil {
				return err
			}
			if sessionID != nil {
				order.CashDrawerSessionID = sessionID
				if err := repo.SaveAggregate(ctx, order, s.now()); err != nil {
					return persistError(err, "attach drawer session")
				}
			}
		}

		if err := repo.CreatePayment(ctx, order, payment); err != nil {
			return persistError(err, "record payment")
		}
		if _, err := s.events.Record(ctx, tx, orderevents.RecordInput{
			OrderID: order.ID,
			ActorID: input.ActorID,
			Type:    enums.OrderEventPaymentAdded,
			Payload: paymentPayload{
				PaymentID:         payment.ID,
				Method:            payment.Method,
				Amount:            payment.Amount,
				AmountTendered:    payment.AmountTendered,
				ChangeGiven:       payment.ChangeGiven,
				GiftCertificateID: payment.GiftCertificateID,
			},
		}); err != nil {
			return err
		}

		order.Payments = append(order.Payments, *payment)
		result = s.result(order, payment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayment(result.Payment.Method)
	ctx = s.logg.WithOrderID(ctx, result.Order.ID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"method": string(result.Payment.Method),
		"amount": result.Payment.Amount.StringFixed(2),
	})
	s.logg.Info(ctx, "payment.added")
	return result, nil
}

// buildPayment applies the tender rules for the method. Cash amounts are
// rounded before any comparison.
func (s *service) buildPayment(order *models.Order, input AddPaymentInput) (*models.OrderPayment, error) {
	var amount decimal.Decimal
	switch {
	case input.Amount != nil:
		amount = *input.Amount
	case input.Method.IsCash():
		amount = totals.BalanceDue(order)
	default:
		return nil, pkgerrors.Validation("amount", "amount is required")
	}

	tendered := amount
	if input.AmountTendered != nil {
		tendered = *input.AmountTendered
	}

	if input.Method.IsCash() {
		amount = money.RoundToIncrement(amount, s.increment)
		tendered = money.RoundToIncrement(tendered, s.increment)
	} else {
		amount = money.Round2(amount)
		tendered = amount
	}

	if amount.Sign() <= 0 {
		return nil, pkgerrors.Validation("amount", "amount must be greater than zero")
	}
	if tendered.LessThan(amount) {
		return nil, pkgerrors.Validation("amount_tendered", "amount tendered is less than the amount charged").
			WithDetails(map[string]any{
				"field":           "amount_tendered",
				"reason":          "amount tendered is less than the amount charged",
				"amount":          amount.StringFixed(2),
				"amount_tendered": tendered.StringFixed(2),
			})
	}

	return &models.OrderPayment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		Method:         input.Method,
		Amount:         amount,
		AmountTendered: tendered,
		ChangeGiven:    money.ClampZero(tendered.Sub(amount)),
		Reference:      cleanReference(input.Reference),
		CreatedBy:      input.ActorID,
	}, nil
}

// RemovePayment deletes a tender from an open order and credits gift
// certificate tenders back to the certificate.
func (s *service) RemovePayment(ctx context.Context, input RemovePaymentInput) (*Result, error) {
	if err := validateTarget(input.Target); err != nil {
		return nil, err
	}
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.Validation("payment_id", "payment id is required")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return lookupError(err)
		}
		if err := orders.EnsureOpen(order); err != nil {
			return err
		}

		idx := -1
		for i := range order.Payments {
			if order.Payments[i].ID == input.PaymentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found on order")
		}
		payment := order.Payments[idx]

		if payment.Method == enums.PaymentMethodGiftCertificate && payment.GiftCertificateID != nil {
			if _, err := s.certs.Restore(ctx, tx, *payment.GiftCertificateID, payment.Amount); err != nil {
				return err
			}
		}
		if err := repo.DeletePayment(ctx, order, payment.ID); err != nil {
			return persistError(err, "remove payment")
		}
		if _, err := s.events.Record(ctx, tx, orderevents.RecordInput{
			OrderID: order.ID,
			ActorID: input.ActorID,
			Type:    enums.OrderEventPaymentRemoved,
			Payload: paymentPayload{
				PaymentID:         payment.ID,
				Method:            payment.Method,
				Amount:            payment.Amount,
				AmountTendered:    payment.AmountTendered,
				ChangeGiven:       payment.ChangeGiven,
				GiftCertificateID: payment.GiftCertificateID,
			},
		}); err != nil {
			return err
		}

		order.Payments = append(order.Payments[:idx], order.Payments[idx+1:]...)
		result = s.result(order, &payment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, result.Order.ID.String())
	ctx = s.logg.WithField(ctx, "payment_id", input.PaymentID.String())
	s.logg.Info(ctx, "payment.removed")
	return result, nil
}

func (s *service) result(order *models.Order, payment *models.OrderPayment) *Result {
	return &Result{
		Order:           order,
		Payment:         payment,
		AmountPaid:      totals.AmountPaid(order),
		BalanceDue:      totals.BalanceDue(order),
		PaymentComplete: totals.PaymentComplete(order, s.tolerance),
	}
}

func validateTarget(target orders.Target) error {
	if target.OrderID == uuid.Nil {
		return pkgerrors.Validation("order_id", "order id is required")
	}
	if target.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}
	return nil
}

func lookupError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
}

func persistError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found on order")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func cleanReference(ref *string) *string {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
