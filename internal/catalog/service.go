package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/internal/giftcertificates"
	"github.com/angelmondragon/settlez-backend/internal/lineitems"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
)

// Service resolves line sources and customers for the order engine.
type Service interface {
	ResolveSellable(ctx context.Context, tx *gorm.DB, kind enums.SellableType, id uuid.UUID) (lineitems.Sellable, error)
	Customer(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Customer, error)
	AdjustStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error
}

type service struct {
	repo  Repository
	certs giftcertificates.Repository
}

// NewService wires the catalog reader with product and certificate storage.
func NewService(repo Repository, certs giftcertificates.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if certs == nil {
		return nil, fmt.Errorf("gift certificate repository required")
	}
	return &service{repo: repo, certs: certs}, nil
}

func (s *service) ResolveSellable(ctx context.Context, tx *gorm.DB, kind enums.SellableType, id uuid.UUID) (lineitems.Sellable, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.Validation("sellable_id", "sellable id is required")
	}

	var (
		item lineitems.Sellable
		err  error
	)
	switch kind {
	case enums.SellableProduct:
		var product *models.Product
		product, err = s.repo.WithTx(tx).FindProduct(ctx, id)
		item = product
	case enums.SellableService:
		var svc *models.Service
		svc, err = s.repo.WithTx(tx).FindService(ctx, id)
		item = svc
	case enums.SellableGiftCertificate:
		var cert *models.GiftCertificate
		cert, err = s.certs.WithTx(tx).FindByID(ctx, id)
		if err == nil && cert.Status != enums.GiftCertificateStatusPending {
			return nil, pkgerrors.Validation("sellable_id", "gift certificate has already been sold")
		}
		item = cert
	default:
		return nil, pkgerrors.Validation("sellable_type", fmt.Sprintf("unknown sellable type %q", kind))
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", kind)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sellable")
	}
	return item, nil
}

func (s *service) Customer(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Customer, error) {
	customer, err := s.repo.WithTx(tx).FindCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

func (s *service) AdjustStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error {
	if err := s.repo.WithTx(tx).AdjustStock(ctx, productID, delta); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust product stock")
	}
	return nil
}
