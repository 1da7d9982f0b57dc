package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/api/handlers"
	"github.com/tenantops/platform-core/internal/api/middleware"
	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/ratelimit"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
}

func NewServer(
	cfg *config.Config,
	repo *db.Repository,
	handler *handlers.Handler,
	guard *ratelimit.Guard,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
	}

	server.setupRoutes(repo, handler, guard, collector, logger)
	return server
}

func (s *Server) setupRoutes(
	repo *db.Repository,
	handler *handlers.Handler,
	guard *ratelimit.Guard,
	collector *metrics.Collector,
	logger *zap.Logger,
) {
	s.Router.GET("/health", handler.Health)
	s.Router.GET("/ready", handler.Ready)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(repo, s.Config)
	auth := s.Router.Group("/api/v1/auth")
	{
		auth.POST("/signup", authHandler.SignUp)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.Config.Auth.JWTSecret))
	api.Use(middleware.TenantActive(repo))
	api.Use(middleware.RateLimit(guard, db.LimitTypeAPI, collector, logger))

	// Webhook routes
	{
		api.GET("/webhooks", handler.ListWebhooks)
		api.POST("/webhooks", handler.CreateWebhook)
		api.GET("/webhooks/:id", handler.GetWebhook)
		api.PUT("/webhooks/:id", handler.UpdateWebhook)
		api.DELETE("/webhooks/:id", handler.DeleteWebhook)
		api.POST("/webhooks/:id/test", handler.TestWebhook)
		api.GET("/webhooks/:id/logs", handler.ListWebhookLogs)
	}

	// Event dispatch
	{
		api.POST("/events", handler.DispatchEvent)
		api.POST("/events/batch", handler.DispatchBatch)
	}

	// Rate limit policy routes
	{
		api.GET("/rate-limits/policy", handler.GetRateLimitPolicy)
		api.GET("/rate-limits", handler.ListRateLimitConfigs)
		api.POST("/rate-limits", handler.CreateRateLimitConfig)
		api.PUT("/rate-limits/:id", handler.UpdateRateLimitConfig)
		api.DELETE("/rate-limits/:id", handler.DeleteRateLimitConfig)
	}

	// Quota warnings
	{
		api.GET("/quota/warnings", handler.ListQuotaWarnings)
		api.POST("/quota/warnings/:id/dismiss", handler.DismissQuotaWarning)
	}

	// Billing
	{
		api.GET("/plans", handler.ListPlans)
		api.POST("/subscriptions", handler.Subscribe)
		api.GET("/subscriptions/current", handler.CurrentSubscription)
		api.POST("/subscriptions/:id/cancel", handler.CancelSubscription)
		api.GET("/modules/:module/access", handler.ModuleAccess)
		api.POST("/usage", handler.RecordUsage)
		api.GET("/usage", handler.ListUsage)
	}

	// Pricing
	{
		api.POST("/pricing/volume", handler.VolumeQuote)
		api.POST("/pricing/tax", handler.CalculateTax)
		api.POST("/pricing/regional", handler.RegionalPrice)
		api.POST("/pricing/convert", handler.ConvertCurrency)
	}
}
