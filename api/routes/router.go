package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/settlez-backend/api/controllers"
	drawercontrollers "github.com/angelmondragon/settlez-backend/api/controllers/cashdrawer"
	ordercontrollers "github.com/angelmondragon/settlez-backend/api/controllers/orders"
	"github.com/angelmondragon/settlez-backend/api/middleware"
	"github.com/angelmondragon/settlez-backend/internal/cashdrawer"
	"github.com/angelmondragon/settlez-backend/internal/orders"
	"github.com/angelmondragon/settlez-backend/internal/payments"
	"github.com/angelmondragon/settlez-backend/internal/refunds"
	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/redis"
)

// Dependencies are the clients and services the HTTP surface is built from.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Orders     orders.Service
	Payments   payments.Service
	Refunds    refunds.Service
	CashDrawer cashdrawer.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.Get("/events", ordercontrollers.Events(deps.Orders, logg))

				r.Post("/lines", ordercontrollers.AddLine(deps.Orders, logg))
				r.Patch("/lines/{lineId}", ordercontrollers.UpdateLineQuantity(deps.Orders, logg))
				r.Delete("/lines/{lineId}", ordercontrollers.RemoveLine(deps.Orders, logg))
				r.Post("/lines/{lineId}/discounts", ordercontrollers.ApplyLineDiscount(deps.Orders, logg))

				r.Post("/discounts", ordercontrollers.ApplyOrderDiscount(deps.Orders, logg))
				r.Delete("/discounts/{discountId}", ordercontrollers.RemoveOrderDiscount(deps.Orders, logg))
				r.Delete("/auto-discounts/{discountId}", ordercontrollers.RemoveAutoDiscount(deps.Orders, logg))
				r.Post("/auto-discounts/{discountId}/restore", ordercontrollers.RestoreAutoDiscount(deps.Orders, logg))
				r.Post("/line-discounts/{discountId}/exclude-unit", ordercontrollers.ExcludeOneUnit(deps.Orders, logg))
				r.Post("/line-discounts/{discountId}/restore-unit", ordercontrollers.RestoreOneUnit(deps.Orders, logg))

				r.Put("/customer", ordercontrollers.SetCustomer(deps.Orders, logg))
				r.Put("/tax-exempt", ordercontrollers.SetTaxExempt(deps.Orders, logg))
				r.Put("/notes", ordercontrollers.SetNotes(deps.Orders, logg))
				r.Post("/recalculate", ordercontrollers.Recalculate(deps.Orders, logg))

				r.Post("/hold", ordercontrollers.Hold(deps.Orders, logg))
				r.Post("/resume", ordercontrollers.Resume(deps.Orders, logg))
				r.Post("/complete", ordercontrollers.Complete(deps.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))

				r.Post("/payments", ordercontrollers.AddPayment(deps.Payments, logg))
				r.Delete("/payments/{paymentId}", ordercontrollers.RemovePayment(deps.Payments, logg))

				r.Get("/refunds", ordercontrollers.ListRefunds(deps.Refunds, logg))
				r.Post("/refunds", ordercontrollers.ProcessRefund(deps.Refunds, logg))
			})
		})

		r.Route("/cash-drawer/sessions", func(r chi.Router) {
			r.Get("/", drawercontrollers.List(deps.CashDrawer, logg))
			r.Post("/", drawercontrollers.Open(deps.CashDrawer, logg))
			r.Get("/current", drawercontrollers.Current(deps.CashDrawer, logg))
			r.Get("/{sessionId}", drawercontrollers.Summary(deps.CashDrawer, logg))
			r.Post("/{sessionId}/close", drawercontrollers.Close(deps.CashDrawer, logg))
			r.Post("/{sessionId}/reconcile", drawercontrollers.Reconcile(deps.CashDrawer, logg))
		})
	})

	return r
}
