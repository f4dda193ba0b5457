package giftcertificates

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
)

// Repository persists gift certificates. Balance reads meant for mutation go
// through the ForUpdate finders so the row stays locked until commit.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, cert *models.GiftCertificate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.GiftCertificate, error)
	FindByCode(ctx context.Context, code string) (*models.GiftCertificate, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.GiftCertificate, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*models.GiftCertificate, error)
	UpdateBalance(ctx context.Context, cert *models.GiftCertificate) error
	Activate(ctx context.Context, cert *models.GiftCertificate) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gift certificate repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, cert *models.GiftCertificate) error {
	return r.db.WithContext(ctx).Create(cert).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GiftCertificate, error) {
	return r.find(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.GiftCertificate, error) {
	return r.find(r.db.WithContext(ctx).Where("code = ?", code))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.GiftCertificate, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.GiftCertificate, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("code = ?", code))
}

func (r *repository) find(q *gorm.DB) (*models.GiftCertificate, error) {
	var cert models.GiftCertificate
	if err := q.First(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *repository) UpdateBalance(ctx context.Context, cert *models.GiftCertificate) error {
	return r.db.WithContext(ctx).
		Model(&models.GiftCertificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]any{
			"remaining_balance": cert.RemainingBalance,
			"status":            cert.Status,
		}).Error
}

func (r *repository) Activate(ctx context.Context, cert *models.GiftCertificate) error {
	return r.db.WithContext(ctx).
		Model(&models.GiftCertificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]any{
			"status":            cert.Status,
			"remaining_balance": cert.RemainingBalance,
			"sold_on_order_id":  cert.SoldOnOrderID,
			"activated_at":      cert.ActivatedAt,
		}).Error
}
