package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tipsplit-backend/api/controllers"
	"github.com/angelmondragon/tipsplit-backend/api/middleware"
	"github.com/angelmondragon/tipsplit-backend/internal/invoices"
	"github.com/angelmondragon/tipsplit-backend/internal/reports"
	"github.com/angelmondragon/tipsplit-backend/internal/splits"
	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

// Params carries everything the HTTP surface serves.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Ready    map[string]controllers.Pinger

	Splits   splits.Service
	Invoices invoices.Service
	Tips     controllers.TipRetrier
	Reports  reports.Service
}

func NewRouter(p Params) http.Handler {
	r := chi.NewRouter()
	logg := p.Logger
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, logg, p.Ready))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/invoices", controllers.IssueInvoice(p.Invoices, logg))

		scoped := middleware.PaymentScope(logg)
		r.Route("/splits", func(r chi.Router) {
			r.Post("/", controllers.RegisterSplit(p.Splits, logg))
			r.With(scoped).Get("/{paymentHash}", controllers.GetSplit(p.Splits, logg))
			r.With(scoped).Post("/{paymentHash}/retry-tip", controllers.RetryTip(p.Tips, logg))
		})

		r.With(scoped).Get("/payments/{paymentHash}", controllers.PaymentHistory(p.Reports, logg))

		r.Route("/reports", func(r chi.Router) {
			r.Get("/daily", controllers.ReportDaily(p.Reports, logg))
			r.Get("/currencies", controllers.ReportCurrencies(p.Reports, logg))
			r.Get("/recipients", controllers.ReportRecipients(p.Reports, logg))
		})
	})

	return r
}
