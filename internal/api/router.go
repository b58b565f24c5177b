package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/app"
	iauth "github.com/charlesng35/doctracker/internal/auth"
	"github.com/charlesng35/doctracker/internal/cache"
	"github.com/charlesng35/doctracker/internal/handlers"
	"github.com/charlesng35/doctracker/internal/middleware"
	"github.com/charlesng35/doctracker/internal/monitoring"
	"github.com/charlesng35/doctracker/internal/monitoring/checks"
	"github.com/charlesng35/doctracker/internal/reminders"
)

// Dependencies carries the collaborators the HTTP surface is built from.
// Cache may be nil; rate limit counters then stay in process memory.
type Dependencies struct {
	DB     *gorm.DB
	JWT    *iauth.JWTService
	Config *app.Config
	Engine *reminders.Engine
	Store  *reminders.SQLStore
	Cache  cache.Store
}

func cacheBackend(store cache.Store) string {
	switch store.(type) {
	case *cache.RedisClient:
		return "redis"
	case *cache.DatabaseStore:
		return "database"
	default:
		return "memory"
	}
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Engine == nil || deps.Store == nil {
		return nil, fmt.Errorf("reminder engine and store must be provided")
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	var rateStore middleware.RateStore
	if deps.Cache != nil {
		rateStore = middleware.NewCacheRateStore(deps.Cache)
	}
	r.Use(middleware.RateLimit(rateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	// Health endpoints (public)
	probes := monitoring.NewHealthManager(
		checks.Database(deps.DB, 0),
		checks.Cache(deps.Cache, cacheBackend(deps.Cache), 0),
		checks.ReminderRuns(deps.Engine, 0, nil),
	)
	health := handlers.NewHealthHandler(probes, deps.Engine)
	r.GET("/health", handlers.Health())
	r.GET("/health/ready", health.Ready)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")

	// Scheduler surface: authorised by the scheduler secret, user tokens only matter for previews.
	notificationHandler, err := handlers.NewNotificationHandler(deps.Engine)
	if err != nil {
		return nil, err
	}
	notifications := api.Group("/notifications", middleware.OptionalAuth(deps.JWT))
	{
		notifications.GET("", notificationHandler.Get)
		notifications.POST("", notificationHandler.Run)
		notifications.PUT("", notificationHandler.SendTest)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(middleware.Auth(deps.JWT))

	documentHandler, err := handlers.NewDocumentHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	documents := protected.Group("/documents")
	{
		documents.GET("", documentHandler.List)
		documents.POST("", documentHandler.Create)
		documents.GET("/:id", documentHandler.Get)
		documents.PATCH("/:id", documentHandler.Update)
		documents.DELETE("/:id", documentHandler.Delete)
	}

	settingsHandler, err := handlers.NewSettingsHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	protected.GET("/settings/notifications", settingsHandler.GetNotifications)
	protected.PUT("/settings/notifications", settingsHandler.UpdateNotifications)

	historyHandler, err := handlers.NewHistoryHandler(deps.Store)
	if err != nil {
		return nil, err
	}
	protected.GET("/reminders/history", historyHandler.List)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
