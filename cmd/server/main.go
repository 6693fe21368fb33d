// Command server runs the dispatch dashboard's read-only HTTP API: driver,
// ride and trip listings, a metrics snapshot/websocket feed, and the
// Prometheus scrape endpoint. It never mutates dispatch state itself —
// that's cmd/dispatch's job — so it opens no busy-set or matcher.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatchsim/internal/app"
	"dispatchsim/internal/config"
	"dispatchsim/internal/handler"
	"dispatchsim/internal/metrics"
	"dispatchsim/internal/repository/postgres"
)

func main() {
	cfg := config.Load(os.Getenv("DISPATCH_CONFIG"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := metrics.NewHub()
	go hub.Run(hubCtx)

	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	tripRepo := postgres.NewTripRepository(db)

	aggregator := metrics.NewAggregator(rideRepo, driverRepo, tripRepo)
	throughput := metrics.NewThroughput(redisClient, tripRepo)
	gauges := metrics.NewGauges(nil)
	go metrics.RunTicker(hubCtx, hub, aggregator, throughput, gauges, 2*time.Second)

	server := wireServer(driverRepo, rideRepo, tripRepo, aggregator, throughput, hub, redisClient, nrApp, cfg)

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires handlers and the router and returns the HTTP server.
func wireServer(
	driverRepo *postgres.DriverRepository,
	rideRepo *postgres.RideRepository,
	tripRepo *postgres.TripRepository,
	aggregator *metrics.Aggregator,
	throughput *metrics.Throughput,
	hub *metrics.Hub,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	cfg *config.Config,
) *http.Server {
	driverHandler := handler.NewDriverHandler(driverRepo)
	rideHandler := handler.NewRideHandler(rideRepo)
	tripHandler := handler.NewTripHandler(tripRepo)
	metricsHandler := handler.NewMetricsHandler(aggregator, throughput, hub)

	router := app.NewRouter(app.RouterDeps{
		DriverHandler:  driverHandler,
		RideHandler:    rideHandler,
		TripHandler:    tripHandler,
		MetricsHandler: metricsHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
