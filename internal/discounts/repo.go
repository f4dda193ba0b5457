package discounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
)

// Repository reads and maintains store-wide discount definitions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, discount *models.Discount) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Discount, error)
	ListActive(ctx context.Context, now time.Time) ([]models.Discount, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a discount repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, discount *models.Discount) error {
	return r.db.WithContext(ctx).Create(discount).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
	var discount models.Discount
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&discount).Error; err != nil {
		return nil, err
	}
	return &discount, nil
}

// ListActive returns flagged-active, non-deleted discounts whose window
// contains now.
func (r *repository) ListActive(ctx context.Context, now time.Time) ([]models.Discount, error) {
	var rows []models.Discount
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	active := rows[:0]
	for _, d := range rows {
		if IsActive(d, now) {
			active = append(active, d)
		}
	}
	return active, nil
}
