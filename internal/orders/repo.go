package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.load(r.db.WithContext(ctx), id)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.load(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) load(db *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := db.
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Lines.Discounts", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Discounts", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SaveAggregate writes header totals stamped at `at` and replaces the order's
// lines, line discount allocations and order discounts with the in-memory state.
func (r *repository) SaveAggregate(ctx context.Context, order *models.Order, at time.Time) error {
	if err := r.ensureMutable(ctx, order); err != nil {
		return err
	}
	order.UpdatedAt = at.UTC()
	db := r.db.WithContext(ctx)

	err := db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"customer_id":             order.CustomerID,
			"cash_drawer_session_id":  order.CashDrawerSessionID,
			"subtotal":                order.Subtotal,
			"discount_total":          order.DiscountTotal,
			"tax_total":               order.TaxTotal,
			"total":                   order.Total,
			"tax_exempt":              order.TaxExempt,
			"tax_exempt_certificate":  order.TaxExemptCertificate,
			"notes":                   order.Notes,
			"overridden_discount_ids": order.OverriddenDiscountIDs,
			"updated_at":              order.UpdatedAt,
		}).Error
	if err != nil {
		return err
	}

	lineIDs := db.Model(&models.OrderLine{}).Select("id").Where("order_id = ?", order.ID)
	if err := db.Where("order_line_id IN (?)", lineIDs).Delete(&models.OrderLineDiscount{}).Error; err != nil {
		return err
	}
	if err := db.Where("order_id = ?", order.ID).Delete(&models.OrderLine{}).Error; err != nil {
		return err
	}
	if err := db.Where("order_id = ?", order.ID).Delete(&models.OrderDiscount{}).Error; err != nil {
		return err
	}

	allocations := make([]models.OrderLineDiscount, 0)
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := db.Omit(clause.Associations).Create(line).Error; err != nil {
			return err
		}
		for j := range line.Discounts {
			line.Discounts[j].OrderLineID = line.ID
			allocations = append(allocations, line.Discounts[j])
		}
	}
	if len(allocations) > 0 {
		if err := db.Create(&allocations).Error; err != nil {
			return err
		}
	}

	for i := range order.Discounts {
		order.Discounts[i].OrderID = order.ID
	}
	if len(order.Discounts) > 0 {
		if err := db.Create(&order.Discounts).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus writes only status and lifecycle timestamps, stamped at `at`.
func (r *repository) UpdateStatus(ctx context.Context, order *models.Order, at time.Time) error {
	order.UpdatedAt = at.UTC()
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":       order.Status,
			"held_at":      order.HeldAt,
			"completed_at": order.CompletedAt,
			"cancelled_at": order.CancelledAt,
			"updated_at":   order.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CreatePayment(ctx context.Context, order *models.Order, payment *models.OrderPayment) error {
	if err := r.ensureMutable(ctx, order); err != nil {
		return err
	}
	payment.OrderID = order.ID
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) DeletePayment(ctx context.Context, order *models.Order, paymentID uuid.UUID) error {
	if err := r.ensureMutable(ctx, order); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", paymentID, order.ID).
		Delete(&models.OrderPayment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ensureMutable checks both the stored and in-memory status so a caller
// that skipped the service-level check still cannot rewrite a finalized order.
func (r *repository) ensureMutable(ctx context.Context, order *models.Order) error {
	if order == nil || order.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	var stored models.Order
	err := r.db.WithContext(ctx).
		Select("id", "status").
		Where("id = ?", order.ID).
		Take(&stored).Error
	if err != nil {
		return err
	}
	if stored.Status.IsFinalized() || order.Status.IsFinalized() {
		return pkgerrors.New(pkgerrors.CodeImmutable, "finalized order cannot be modified").
			WithDetails(map[string]any{
				"order_id": order.ID.String(),
				"status":   string(stored.Status),
			})
	}
	return nil
}
