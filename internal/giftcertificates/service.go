// Package giftcertificates moves stored-value balances under row locks.
package giftcertificates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/money"
)

// Service mutates certificate balances. Every method takes the caller's
// transaction so the row lock spans the surrounding payment write.
type Service interface {
	Lookup(ctx context.Context, code string) (*models.GiftCertificate, error)
	Redeem(ctx context.Context, tx *gorm.DB, code string, amount decimal.Decimal) (*models.GiftCertificate, error)
	Restore(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) (*models.GiftCertificate, error)
	ActivateSold(ctx context.Context, tx *gorm.DB, id, orderID uuid.UUID, at time.Time) (*models.GiftCertificate, error)
}

type service struct {
	repo Repository
}

// NewService wires a gift certificate service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("gift certificate repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Lookup(ctx context.Context, code string) (*models.GiftCertificate, error) {
	cert, err := s.repo.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, notFoundOr(err, "load gift certificate")
	}
	return cert, nil
}

// Redeem decrements the certificate's balance by amount. The balance is left
// untouched when the certificate is not active or cannot cover the amount.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, code string, amount decimal.Decimal) (*models.GiftCertificate, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for gift certificate redemption")
	}
	code = normalizeCode(code)
	if code == "" {
		return nil, pkgerrors.Validation("gift_certificate_code", "gift certificate code is required")
	}
	amount = money.Round2(amount)
	if amount.Sign() <= 0 {
		return nil, pkgerrors.Validation("amount", "amount must be greater than zero")
	}

	repo := s.repo.WithTx(tx)
	cert, err := repo.FindByCodeForUpdate(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Validation("gift_certificate_code", "gift certificate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock gift certificate")
	}
	if !cert.Status.Redeemable() {
		return nil, pkgerrors.Validation("gift_certificate_code", fmt.Sprintf("gift certificate is %s", cert.Status))
	}
	if cert.RemainingBalance.LessThan(amount) {
		return nil, pkgerrors.Validation("amount", "insufficient gift certificate balance").
			WithDetails(map[string]any{
				"field":             "amount",
				"reason":            "insufficient gift certificate balance",
				"remaining_balance": cert.RemainingBalance.StringFixed(2),
			})
	}

	cert.RemainingBalance = cert.RemainingBalance.Sub(amount)
	if cert.RemainingBalance.IsZero() {
		cert.Status = enums.GiftCertificateStatusExhausted
	}
	if err := repo.UpdateBalance(ctx, cert); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update gift certificate balance")
	}
	return cert, nil
}

// Restore credits amount back, capped at the initial amount, and reactivates
// an exhausted certificate.
func (s *service) Restore(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) (*models.GiftCertificate, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for gift certificate restore")
	}
	amount = money.Round2(amount)
	if amount.Sign() <= 0 {
		return nil, pkgerrors.Validation("amount", "amount must be greater than zero")
	}

	repo := s.repo.WithTx(tx)
	cert, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lock gift certificate")
	}

	cert.RemainingBalance = money.Min(cert.RemainingBalance.Add(amount), cert.InitialAmount)
	if cert.Status == enums.GiftCertificateStatusExhausted && cert.RemainingBalance.Sign() > 0 {
		cert.Status = enums.GiftCertificateStatusActive
	}
	if err := repo.UpdateBalance(ctx, cert); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update gift certificate balance")
	}
	return cert, nil
}

// ActivateSold turns a pending certificate sold on orderID into spendable
// value with its full initial balance.
func (s *service) ActivateSold(ctx context.Context, tx *gorm.DB, id, orderID uuid.UUID, at time.Time) (*models.GiftCertificate, error) {
	repo := s.repo.WithTx(tx)
	cert, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lock gift certificate")
	}
	if cert.Status != enums.GiftCertificateStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "gift certificate %s is already %s", cert.Code, cert.Status)
	}

	activatedAt := at.UTC()
	sold := orderID
	cert.Status = enums.GiftCertificateStatusActive
	cert.RemainingBalance = cert.InitialAmount
	cert.SoldOnOrderID = &sold
	cert.ActivatedAt = &activatedAt
	if err := repo.Activate(ctx, cert); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate gift certificate")
	}
	return cert, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func notFoundOr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "gift certificate not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
