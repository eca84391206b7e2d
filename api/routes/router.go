package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/caisseflow/api/controllers"
	"github.com/angelmondragon/caisseflow/api/middleware"
	"github.com/angelmondragon/caisseflow/internal/actions"
	"github.com/angelmondragon/caisseflow/internal/entities"
	"github.com/angelmondragon/caisseflow/internal/funding"
	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/payments"
	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	pkgredis "github.com/angelmondragon/caisseflow/pkg/redis"
)

// RouterParams groups the services exposed over HTTP.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Readiness   map[string]controllers.Pinger

	Registers registers.Service
	Ledger    ledger.Service
	Funding   funding.Service
	Parser    controllers.FundingTextParser
	Entities  entities.Service
	Payments  payments.Service
	Actions   actions.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Actor(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Inline so the idempotency rules see the fully matched route pattern.
	idem := middleware.Idempotency(p.Idempotency, cfg.Eventing.HTTPIdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/registers", func(r chi.Router) {
			r.With(idem).Post("/", controllers.RegisterCreate(p.Registers, logg))
			r.Get("/", controllers.RegisterList(p.Registers, logg))
			r.Get("/{registerId}/balances", controllers.RegisterBalances(p.Ledger, logg))
			r.Get("/{registerId}/transactions", controllers.RegisterTransactions(p.Ledger, logg))
			r.Get("/{registerId}/verify", controllers.RegisterVerify(p.Ledger, logg))
			r.Get("/{registerId}/funding-requests", controllers.FundingListByRegister(p.Funding, logg))
		})

		r.Route("/funding-requests", func(r chi.Router) {
			r.With(idem).Post("/", controllers.FundingSubmit(p.Funding, logg))
			r.Post("/parse", controllers.FundingParse(p.Parser, logg))
			r.Get("/*", controllers.FundingGet(p.Funding, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(idem).Post("/", controllers.OrderCreate(p.Entities, logg))
			r.Get("/{orderId}", controllers.OrderGet(p.Entities, logg))
			r.With(idem).Post("/{orderId}/proformas", controllers.ProformaAdd(p.Entities, logg))
		})
		r.With(idem).Post("/proformas/{proformaId}/validate", controllers.ProformaValidate(p.Entities, logg))
		r.With(idem).Post("/payment-requests", controllers.PaymentRequestCreate(p.Entities, logg))
		r.Get("/entities/summary", controllers.EntitySummary(p.Payments, logg))

		r.Route("/actions", func(r chi.Router) {
			r.With(idem).Post("/", controllers.ActionEnqueue(p.Actions, logg))
			r.Get("/{jobId}", controllers.ActionGet(p.Actions, logg))
		})
	})

	return r
}
