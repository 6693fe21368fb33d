package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatchsim/internal/handler"
	"dispatchsim/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	DriverHandler  *handler.DriverHandler
	RideHandler    *handler.RideHandler
	TripHandler    *handler.TripHandler
	MetricsHandler *handler.MetricsHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router serving the read-only dispatch
// dashboard: drivers, rides, trips, and metrics, plus the websocket feed.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/drivers", deps.DriverHandler.GetAll)
		api.GET("/rides", deps.RideHandler.GetAll)
		api.GET("/rides/:id", deps.RideHandler.GetByID)
		api.GET("/trips", deps.TripHandler.GetAll)
		api.GET("/metrics", deps.MetricsHandler.GetSnapshot)
		api.GET("/crdb/overview", deps.MetricsHandler.GetCRDBOverview)
		api.GET("/metrics/ws", deps.MetricsHandler.ServeWS)
	}

	router.GET("/metrics", gin.WrapH(deps.MetricsHandler.PrometheusHandler()))

	return router
}
