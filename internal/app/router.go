package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/masterdata/branches"
	"github.com/brioche-erp/brioche-erp/internal/masterdata/products"
	"github.com/brioche-erp/brioche-erp/internal/observability"
	"github.com/brioche-erp/brioche-erp/internal/production"
	"github.com/brioche-erp/brioche-erp/internal/returns"
	"github.com/brioche-erp/brioche-erp/internal/sales"
	"github.com/brioche-erp/brioche-erp/internal/transfers"
	"github.com/brioche-erp/brioche-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	TransfersHandler  *transfers.Handler
	ReturnsHandler    *returns.Handler
	SalesHandler      *sales.Handler
	ProductionHandler *production.Handler
	ProductsHandler   *products.Handler
	BranchesHandler   *branches.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/stock", params.LedgerHandler.MountRoutes)
		api.Route("/transfers", params.TransfersHandler.MountRoutes)
		api.Route("/returns", params.ReturnsHandler.MountRoutes)
		api.Route("/sales", params.SalesHandler.MountRoutes)
		api.Route("/production", params.ProductionHandler.MountRoutes)
		api.Route("/products", params.ProductsHandler.MountRoutes)
		api.Route("/branches", params.BranchesHandler.MountRoutes)
		if params.JobsHandler != nil {
			api.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
