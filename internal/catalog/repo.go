// Package catalog gives the settlement engine read access to sellables,
// tax codes and customers, plus the stock adjustments settlement drives.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
)

// Repository reads catalog records and adjusts tracked stock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTaxCode(ctx context.Context, code *models.TaxCode) error
	CreateProduct(ctx context.Context, product *models.Product) error
	CreateService(ctx context.Context, service *models.Service) error
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindService(ctx context.Context, id uuid.UUID) (*models.Service, error)
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTaxCode(ctx context.Context, code *models.TaxCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Omit("TaxCode").Create(product).Error
}

func (r *repository) CreateService(ctx context.Context, service *models.Service) error {
	return r.db.WithContext(ctx).Omit("TaxCode").Create(service).Error
}

func (r *repository) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Omit("TaxCode").Create(customer).Error
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Preload("TaxCode").
		Where("id = ? AND active = ?", id, true).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := r.db.WithContext(ctx).
		Preload("TaxCode").
		Where("id = ? AND active = ?", id, true).
		First(&service).Error; err != nil {
		return nil, err
	}
	return &service, nil
}

func (r *repository) FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Preload("TaxCode").
		Where("id = ?", id).
		First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// AdjustStock moves stock_quantity by delta on inventory-tracked products and
// ignores untracked ones.
func (r *repository) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND track_inventory = ?", productID, true).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta)).Error
}
