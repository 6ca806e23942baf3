package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/quotehub-backend/api/controllers"
	"github.com/angelmondragon/quotehub-backend/api/middleware"
	"github.com/angelmondragon/quotehub-backend/internal/consolidation"
	pkgauth "github.com/angelmondragon/quotehub-backend/pkg/auth"
	"github.com/angelmondragon/quotehub-backend/pkg/config"
	"github.com/angelmondragon/quotehub-backend/pkg/logger"
	"github.com/angelmondragon/quotehub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	consolidationService consolidation.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	mutationPolicy := middleware.NewRateLimitPolicy(
		"mutations",
		cfg.RateLimit.Window,
		cfg.RateLimit.MutationsPerWindow,
	)
	sendPolicy := middleware.NewRateLimitPolicy(
		"send",
		cfg.RateLimit.Window,
		cfg.RateLimit.SendsPerWindow,
	)

	readyDeps := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		readyDeps["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/consolidated-orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(pkgauth.RoleDistributor, logg))
		r.Use(middleware.Idempotency(redisClient, cfg.Redis.IdempotencyTTL, logg))

		r.Get("/", controllers.ListConsolidatedOrders(consolidationService, logg))
		r.Get("/{draftId}", controllers.GetConsolidatedOrder(consolidationService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(mutationPolicy, redisClient, logg))
			r.Post("/", controllers.GetOrCreateConsolidatedOrder(consolidationService, logg))
			r.Post("/{draftId}/sync", controllers.SyncConsolidatedOrder(consolidationService, logg))
			r.Post("/{draftId}/items", controllers.AddConsolidatedOrderProduct(consolidationService, logg))
			r.Patch("/items/{itemId}", controllers.UpdateConsolidatedOrderItem(consolidationService, logg))
			r.Delete("/items/{itemId}", controllers.RemoveConsolidatedOrderItem(consolidationService, logg))
			r.Put("/{draftId}/notes", controllers.UpdateConsolidatedOrderNotes(consolidationService, logg))
			r.Post("/{draftId}/cancel", controllers.CancelConsolidatedOrder(consolidationService, logg))
		})

		r.With(middleware.RateLimit(sendPolicy, redisClient, logg)).
			Post("/{draftId}/send", controllers.SendConsolidatedOrder(consolidationService, logg))
	})

	return r
}
