package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reserver/internal/approvals"
	"reserver/internal/notifications"
	"reserver/internal/reservations"
	"reserver/internal/resources"
	"reserver/internal/shared/config"
	"reserver/internal/shared/database"
	"reserver/internal/sockets"
	"reserver/internal/waitlist"
	"reserver/internal/webhooks"
	"reserver/pkg/logger"
)

// Deps carries the wired services the HTTP surface exposes. Construction
// happens in main because the core services are cross-linked (allocator,
// waitlist, approvals) before any controller exists.
type Deps struct {
	Resources     resources.Service
	Reservations  reservations.Service
	Approvals     approvals.Service
	Waitlist      waitlist.Service
	Notifications notifications.Service
	Webhooks      webhooks.Service
	Hub           *sockets.Hub
	Log           *logger.Logger
}

type Router struct {
	config *config.Config
	db     *database.DB
	deps   Deps
}

func NewRouter(cfg *config.Config, db *database.DB, deps Deps) *Router {
	return &Router{config: cfg, db: db, deps: deps}
}

// SetupRoutes configures all application routes.
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group(r.config.GetAPIBasePath())
	{
		resources.SetupResourceRoutes(api, resources.NewController(r.deps.Resources), r.config)
		reservations.SetupReservationRoutes(api, reservations.NewController(r.deps.Reservations), r.config)
		approvals.SetupApprovalRoutes(api, approvals.NewController(r.deps.Approvals), r.config)
		waitlist.SetupWaitlistRoutes(api, waitlist.NewController(r.deps.Waitlist), r.config)
		notifications.SetupNotificationRoutes(api, notifications.NewController(r.deps.Notifications), r.config)
		webhooks.SetupWebhookRoutes(api, webhooks.NewController(r.deps.Webhooks), r.config)
		sockets.SetupSocketRoutes(api, sockets.NewController(r.deps.Hub, r.config, r.deps.Log))
	}
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "reserver-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "reserver-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}
