package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/metrics"
)

// Default timeout and health constants.
const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"
)

// Router holds the API dependencies
type Router struct {
	batches     BatchStore
	drafts      DraftStore
	publisher   Publisher
	publishLog  PublishLogStore
	vault       SessionVault
	checker     SessionChecker
	stats       *StatsService
	db          *sqlx.DB
	redisClient *redis.Client
	cfg         *config.Config
	logger      logger.Logger
}

// Deps bundles the router's collaborators.
type Deps struct {
	Batches     BatchStore
	Drafts      DraftStore
	Publisher   Publisher
	PublishLog  PublishLogStore
	Vault       SessionVault
	Checker     SessionChecker
	Stats       *StatsService
	DB          *sqlx.DB
	RedisClient *redis.Client
}

// NewRouter creates a new API router
func NewRouter(deps Deps, cfg *config.Config, log logger.Logger) *Router {
	return &Router{
		batches:     deps.Batches,
		drafts:      deps.Drafts,
		publisher:   deps.Publisher,
		publishLog:  deps.PublishLog,
		vault:       deps.Vault,
		checker:     deps.Checker,
		stats:       deps.Stats,
		db:          deps.DB,
		redisClient: deps.RedisClient,
		cfg:         cfg,
		logger:      log,
	}
}

// SetupRoutes builds the gin engine with all routes and middleware.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(r.cfg.Server.CORSOrigins))

	// Health and metrics are public, outside the versioned API.
	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")

	// Photo batches
	batches := v1.Group("/batches")
	batches.POST("", r.createBatch)
	batches.GET("/:id", r.getBatch)
	batches.GET("/:id/drafts", r.listBatchDrafts)

	// Drafts
	drafts := v1.Group("/drafts")
	drafts.GET("", r.listDrafts)
	drafts.GET("/:id", r.getDraft)
	drafts.PATCH("/:id", r.updateDraft)
	drafts.POST("/:id/reject", r.rejectDraft)
	drafts.POST("/:id/prepare", r.prepareDraft)

	// Publish protocol
	publish := v1.Group("/publish")
	publish.POST("", r.publish)
	publish.POST("/cancel", r.cancelPublish)

	v1.GET("/publish-log", r.listPublishLog)

	// Marketplace session
	session := v1.Group("/session")
	session.PUT("", r.saveSession)
	session.GET("/status", r.sessionStatus)
	session.POST("/check", r.checkSession)
	session.DELETE("", r.deleteSession)

	// Stats
	v1.GET("/stats", r.getStats)

	return router
}

// healthCheck returns the service health status
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "listforge",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if r.db != nil {
		connected := true
		if err := r.db.PingContext(ctx); err != nil {
			connected = false
			health["status"] = healthStatusDegraded
		}
		health["database"] = gin.H{"connected": connected}
	}

	if r.redisClient != nil {
		connected := true
		if err := r.redisClient.Ping(ctx).Err(); err != nil {
			connected = false
			health["status"] = healthStatusDegraded
		}
		health["redis"] = gin.H{"connected": connected}
	}

	c.JSON(http.StatusOK, health)
}
