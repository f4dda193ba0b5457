package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/internal/cashdrawer"
	"github.com/angelmondragon/settlez-backend/internal/catalog"
	"github.com/angelmondragon/settlez-backend/internal/discounts"
	"github.com/angelmondragon/settlez-backend/internal/giftcertificates"
	"github.com/angelmondragon/settlez-backend/internal/numbering"
	"github.com/angelmondragon/settlez-backend/internal/orderevents"
	"github.com/angelmondragon/settlez-backend/internal/orders"
	"github.com/angelmondragon/settlez-backend/internal/payments"
	"github.com/angelmondragon/settlez-backend/internal/refunds"
	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/db"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
)

// Params are the shared clients the settlement services are built on.
type Params struct {
	DB         *gorm.DB
	Sequencer  numbering.Sequencer
	Settlement config.SettlementConfig
	Metrics    *metrics.SettlementMetrics
	Logger     *logger.Logger
}

// Services is the settlement engine as exposed over HTTP.
type Services struct {
	Catalog    catalog.Service
	Orders     orders.Service
	Payments   payments.Service
	Refunds    refunds.Service
	CashDrawer cashdrawer.Service
	Outbox     *outbox.Service
}

// NewServices wires every repository and service against one connection.
func NewServices(p Params) (*Services, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("database connection required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	tx := db.FromGorm(p.DB)
	outboxSvc := outbox.NewService(outbox.NewRepository(p.DB), logg)
	numbers := numbering.NewGenerator(p.Sequencer, p.Settlement)
	ordersRepo := orders.NewRepository(p.DB)
	certRepo := giftcertificates.NewRepository(p.DB)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(p.DB), certRepo)
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	certSvc, err := giftcertificates.NewService(certRepo)
	if err != nil {
		return nil, fmt.Errorf("gift certificate service: %w", err)
	}
	eventsSvc, err := orderevents.NewService(orderevents.NewRepository(p.DB))
	if err != nil {
		return nil, fmt.Errorf("order event service: %w", err)
	}

	drawerSvc, err := cashdrawer.NewService(cashdrawer.ServiceParams{
		Repo:    cashdrawer.NewRepository(p.DB),
		Tx:      tx,
		Outbox:  outboxSvc,
		Metrics: p.Metrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("cash drawer service: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      ordersRepo,
		Tx:        tx,
		Catalog:   catalogSvc,
		Discounts: discounts.NewRepository(p.DB),
		Certs:     certSvc,
		Events:    eventsSvc,
		Numbers:   numbers,
		Sessions:  drawerSvc,
		Outbox:    outboxSvc,
		Metrics:   p.Metrics,
		Logger:    logg,
		Tolerance: p.Settlement.Tolerance(),
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Orders:     ordersRepo,
		Tx:         tx,
		Certs:      certSvc,
		Events:     eventsSvc,
		Sessions:   drawerSvc,
		Metrics:    p.Metrics,
		Logger:     logg,
		Settlement: p.Settlement,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	refundsSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:    refunds.NewRepository(p.DB),
		Orders:  ordersRepo,
		Tx:      tx,
		Catalog: catalogSvc,
		Events:  eventsSvc,
		Numbers: numbers,
		Outbox:  outboxSvc,
		Metrics: p.Metrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("refunds service: %w", err)
	}

	return &Services{
		Catalog:    catalogSvc,
		Orders:     ordersSvc,
		Payments:   paymentsSvc,
		Refunds:    refundsSvc,
		CashDrawer: drawerSvc,
		Outbox:     outboxSvc,
	}, nil
}
