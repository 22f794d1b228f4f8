package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-orders/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-orders/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/marketplace-orders/api/controllers/orders"
	"github.com/angelmondragon/marketplace-orders/api/middleware"
	"github.com/angelmondragon/marketplace-orders/internal/cart"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/pkg/config"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs. Redis is optional;
// without it idempotency replay and checkout throttling are off.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics

	Redis        *redis.Client
	ReadyChecks  map[string]controllers.Pinger
	Engine       ordercontrollers.Engine
	Cart         cart.Service
	Checkout     controllers.CheckoutService
	Returns      ordercontrollers.ReturnSubmitter
	Reviews      ordercontrollers.ReviewSubmitter
	SellerOrders ordercontrollers.SellerOrderLister
	Notify       notifications.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.ReadyChecks, logg))
	})
	if p.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	idempotent := func(next http.Handler) http.Handler { return next }
	throttled := idempotent
	if p.Redis != nil {
		idempotent = middleware.Idempotency(p.Redis, middleware.CriticalIdempotencyTTL, logg)
		throttled = middleware.RateLimit(middleware.NewRateLimitPolicy(
			"checkout",
			cfg.RateLimit.CheckoutWindow,
			cfg.RateLimit.CheckoutActorLimit,
			cfg.RateLimit.CheckoutIPLimit,
		), p.Redis, logg)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
			r.Get("/", cartcontrollers.CartFetch(p.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(p.Cart, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(p.Cart, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(p.Cart, logg))
		})

		r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer), throttled, idempotent).
			Post("/checkout", controllers.Checkout(p.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(p.Engine, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Engine, logg))
			r.With(idempotent).Post("/{orderId}/status", ordercontrollers.UpdateStatus(p.Engine, logg))
			r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.Cancel(p.Engine, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer), idempotent)
				r.Post("/{orderId}/return", ordercontrollers.SubmitReturn(p.Returns, p.Engine, logg))
				r.Post("/{orderId}/reviews", ordercontrollers.SubmitReviews(p.Reviews, p.Engine, logg))
			})
		})

		r.Route("/seller/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleSeller))
			r.Get("/", ordercontrollers.ListSellerOrders(p.SellerOrders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleSeller))
			r.Get("/", controllers.ListNotifications(p.Notify, logg))
			r.Get("/live", controllers.LiveNotifications(p.Notify, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notify, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notify, logg))
		})
	})

	return r
}
