package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/types"
)

// CashDrawerSession tracks one open-to-close cycle of the till. Amounts are cents.
type CashDrawerSession struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Status               enums.CashDrawerStatus   `gorm:"column:status;type:cash_drawer_status;not null;default:'open'"`
	OpenedBy             uuid.UUID                `gorm:"column:opened_by;type:uuid;not null"`
	ClosedBy             *uuid.UUID               `gorm:"column:closed_by;type:uuid"`
	OpeningCounts        types.DenominationCounts `gorm:"column:opening_counts;type:jsonb;not null"`
	OpeningTotalCents    int64                    `gorm:"column:opening_total_cents;not null"`
	ClosingCounts        types.DenominationCounts `gorm:"column:closing_counts;type:jsonb"`
	ClosingTotalCents    *int64                   `gorm:"column:closing_total_cents"`
	ExpectedClosingCents *int64                   `gorm:"column:expected_closing_cents"`
	DiscrepancyCents     *int64                   `gorm:"column:discrepancy_cents"`
	Notes                *string                  `gorm:"column:notes"`
	OpenedAt             time.Time                `gorm:"column:opened_at;not null"`
	ClosedAt             *time.Time               `gorm:"column:closed_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`

	Reconciliation *TerminalReconciliation `gorm:"foreignKey:SessionID"`
}

func (s *CashDrawerSession) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// TerminalReconciliation compares the card terminal's batch totals against
// the electronic tenders recorded during a closed drawer session.
type TerminalReconciliation struct {
	ID                     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SessionID              uuid.UUID `gorm:"column:session_id;type:uuid;not null;uniqueIndex"`
	ReconciledBy           uuid.UUID `gorm:"column:reconciled_by;type:uuid;not null"`
	DebitExpectedCents     int64     `gorm:"column:debit_expected_cents;not null"`
	DebitActualCents       int64     `gorm:"column:debit_actual_cents;not null"`
	DebitDiscrepancyCents  int64     `gorm:"column:debit_discrepancy_cents;not null"`
	CreditExpectedCents    int64     `gorm:"column:credit_expected_cents;not null"`
	CreditActualCents      int64     `gorm:"column:credit_actual_cents;not null"`
	CreditDiscrepancyCents int64     `gorm:"column:credit_discrepancy_cents;not null"`
	Notes                  *string   `gorm:"column:notes"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *TerminalReconciliation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
