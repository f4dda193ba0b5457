package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
)

var sqliteIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_cash_drawer_sessions_single_open ON cash_drawer_sessions (status) WHERE status = 'open'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_terminal_reconciliations_session ON terminal_reconciliations (session_id)`,
}

// AutoMigrateSQLite creates the settlement tables on a sqlite connection and
// adds the partial indexes gorm cannot express through struct tags.
func AutoMigrateSQLite(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.TaxCode{},
		&models.Customer{},
		&models.Product{},
		&models.Service{},
		&models.Discount{},
		&models.DiscountItem{},
		&models.CashDrawerSession{},
		&models.TerminalReconciliation{},
		&models.Order{},
		&models.OrderLine{},
		&models.OrderLineDiscount{},
		&models.OrderDiscount{},
		&models.GiftCertificate{},
		&models.OrderPayment{},
		&models.OrderEvent{},
		&models.Refund{},
		&models.RefundLine{},
		&models.DocumentSequence{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	)
	if err != nil {
		return err
	}
	for _, stmt := range sqliteIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
