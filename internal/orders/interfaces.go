package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
)

// Repository persists the order aggregate. Writes that touch lines,
// discounts, payments or header fields are refused once the order is
// finalized; UpdateStatus is the only write path left after that.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SaveAggregate(ctx context.Context, order *models.Order, at time.Time) error
	UpdateStatus(ctx context.Context, order *models.Order, at time.Time) error
	CreatePayment(ctx context.Context, order *models.Order, payment *models.OrderPayment) error
	DeletePayment(ctx context.Context, order *models.Order, paymentID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SessionFinder reports the currently open cash drawer session, if any.
type SessionFinder interface {
	OpenSessionID(ctx context.Context, tx *gorm.DB) (*uuid.UUID, error)
}
