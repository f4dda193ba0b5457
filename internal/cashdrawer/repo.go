package cashdrawer

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
)

// Repository persists drawer sessions and their terminal reconciliations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CashDrawerSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CashDrawerSession, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CashDrawerSession, error)
	FindOpen(ctx context.Context) (*models.CashDrawerSession, error)
	List(ctx context.Context, limit int, after *pagination.Cursor) ([]models.CashDrawerSession, *pagination.Cursor, error)
	Close(ctx context.Context, session *models.CashDrawerSession) error
	CreateReconciliation(ctx context.Context, rec *models.TerminalReconciliation) error
	SettledPayments(ctx context.Context, sessionID uuid.UUID) ([]models.OrderPayment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a drawer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CashDrawerSession) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CashDrawerSession, error) {
	var session models.CashDrawerSession
	if err := r.db.WithContext(ctx).
		Preload("Reconciliation").
		First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CashDrawerSession, error) {
	var session models.CashDrawerSession
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Reconciliation").
		First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindOpen(ctx context.Context) (*models.CashDrawerSession, error) {
	var session models.CashDrawerSession
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.CashDrawerStatusOpen).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) List(ctx context.Context, limit int, after *pagination.Cursor) ([]models.CashDrawerSession, *pagination.Cursor, error) {
	var sessions []models.CashDrawerSession
	query := pagination.Keyset(r.db.WithContext(ctx).Preload("Reconciliation"), "opened_at", after, limit)
	if err := query.Find(&sessions).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(sessions, limit, func(s models.CashDrawerSession) pagination.Cursor {
		return pagination.Cursor{At: s.OpenedAt, ID: s.ID}
	})
	return page, next, nil
}

// Close writes the closing columns of a session that is still open.
func (r *repository) Close(ctx context.Context, session *models.CashDrawerSession) error {
	res := r.db.WithContext(ctx).Model(&models.CashDrawerSession{}).
		Where("id = ? AND status = ?", session.ID, enums.CashDrawerStatusOpen).
		Updates(map[string]any{
			"status":                 session.Status,
			"closed_by":              session.ClosedBy,
			"closing_counts":         session.ClosingCounts,
			"closing_total_cents":    session.ClosingTotalCents,
			"expected_closing_cents": session.ExpectedClosingCents,
			"discrepancy_cents":      session.DiscrepancyCents,
			"notes":                  session.Notes,
			"closed_at":              session.ClosedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CreateReconciliation(ctx context.Context, rec *models.TerminalReconciliation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// SettledPayments returns the tenders of completed or refunded orders attached
// to the session.
func (r *repository) SettledPayments(ctx context.Context, sessionID uuid.UUID) ([]models.OrderPayment, error) {
	var payments []models.OrderPayment
	if err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = order_payments.order_id").
		Where("orders.cash_drawer_session_id = ?", sessionID).
		Where("orders.status IN ?", []enums.OrderStatus{
			enums.OrderStatusCompleted,
			enums.OrderStatusPartiallyRefunded,
			enums.OrderStatusRefunded,
		}).
		Where("orders.deleted_at IS NULL").
		Order("order_payments.created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
