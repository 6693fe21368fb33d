// Command dispatch is the operator CLI for the ride-dispatch simulation:
// loading and cleaning historical NYC trip data, seeding a driver fleet,
// and replaying cleaned trips through the matcher and ride-worker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"dispatchsim/internal/app"
	"dispatchsim/internal/busyset"
	"dispatchsim/internal/config"
	"dispatchsim/internal/geoindex"
	"dispatchsim/internal/matcher"
	"dispatchsim/internal/replay"
	"dispatchsim/internal/repository/postgres"
	"dispatchsim/internal/rideworker"
	"dispatchsim/internal/seed"
	"dispatchsim/internal/store"
)

func main() {
	cliApp := &cli.App{
		Name:                 "dispatch",
		Usage:                "seed, clean, and replay the ride-dispatch simulation",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML config file (env vars always win)",
				Value: os.Getenv("DISPATCH_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			seedCommand,
			cleanCommand,
			initDriversCommand,
			replayCommand,
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// dialContext opens the Postgres pool and Redis client a subcommand needs,
// per c's --config flag. New Relic is never wired here — it's dashboard
// instrumentation, not a batch-job concern.
func dialContext(ctx context.Context, c *cli.Context) (*postgres.NycCleanRepository, *postgres.DriverRepository, *postgres.RideRepository, *postgres.TripRepository, *store.Gateway, *busyset.Set, *geoindex.Index, *config.Config, func(), error) {
	cfg := config.Load(c.String("config"))

	db, err := app.NewDatabase(ctx, cfg.Database, nil)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("dispatch: connect database: %w", err)
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nil)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("dispatch: connect redis: %w", err)
	}

	cleanRepo := postgres.NewNycCleanRepository(db)
	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	tripRepo := postgres.NewTripRepository(db)

	diagnostics := store.NewDiagnostics(nil)
	gateway := store.NewGateway(db, diagnostics, 5)
	busySet := busyset.New(redisClient)
	geoIdx := geoindex.New(redisClient)

	closeFn := func() {
		redisClient.Close()
		db.Close()
	}

	return cleanRepo, driverRepo, rideRepo, tripRepo, gateway, busySet, geoIdx, cfg, closeFn, nil
}

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "load synthetic NYC trip rows into staging, then clean them",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "rows", Value: 10000, Usage: "number of synthetic staging rows to generate"},
	},
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		cleanRepo, _, _, _, _, _, _, _, closeFn, err := dialContext(ctx, c)
		if err != nil {
			return err
		}
		defer closeFn()

		n := c.Int("rows")
		log.Printf("dispatch: loading %d synthetic trip rows", n)
		if err := seed.LoadSynthetic(ctx, cleanRepo, n); err != nil {
			return err
		}

		cleaned, err := seed.Clean(ctx, cleanRepo)
		if err != nil {
			return err
		}
		log.Printf("dispatch: cleaned %d rows into nyc_clean", cleaned)
		return nil
	},
}

var cleanCommand = &cli.Command{
	Name:  "clean",
	Usage: "wipe staging, clean, drivers, rides and trips tables",
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		cleanRepo, _, _, _, _, _, _, _, closeFn, err := dialContext(ctx, c)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := cleanRepo.TruncateAll(ctx); err != nil {
			return err
		}
		log.Println("dispatch: truncated all simulation tables")
		return nil
	},
}

var initDriversCommand = &cli.Command{
	Name:  "init-drivers",
	Usage: "create a fleet of AVAILABLE drivers spread across NYC",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Value: 500, Usage: "number of drivers to create"},
		&cli.BoolFlag{Name: "clear", Value: false, Usage: "delete all existing drivers and the busy-set first"},
	},
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		_, driverRepo, _, _, _, busySet, geoIdx, _, closeFn, err := dialContext(ctx, c)
		if err != nil {
			return err
		}
		defer closeFn()

		n := c.Int("count")
		clear := c.Bool("clear")
		log.Printf("dispatch: creating %d drivers (clear=%v)", n, clear)
		if err := seed.InitDrivers(ctx, driverRepo, busySet, geoIdx, n, clear); err != nil {
			return err
		}
		log.Println("dispatch: driver fleet ready")
		return nil
	},
}

var replayCommand = &cli.Command{
	Name:  "replay",
	Usage: "drive cleaned historical trips through the matcher and ride-worker",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 1000, Usage: "maximum number of clean rows to replay"},
	},
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cleanRepo, driverRepo, rideRepo, tripRepo, gateway, busySet, geoIdx, cfg, closeFn, err := dialContext(ctx, c)
		if err != nil {
			return err
		}
		defer closeFn()

		m, err := matcher.New(gateway, driverRepo, rideRepo, busySet, geoIdx, matcher.Config{})
		if err != nil {
			return fmt.Errorf("dispatch: build matcher: %w", err)
		}

		worker := rideworker.New(gateway, rideRepo, driverRepo, tripRepo, m, busySet, geoIdx, rideworker.Config{
			SimulationSpeedup: cfg.Replay.Speedup,
			MinSimDuration:    cfg.Replay.MinSimDuration,
		})

		scheduler := replay.New(cleanRepo, driverRepo, busySet, worker, replay.Config{
			MaxConcurrency:    cfg.Replay.MaxConcurrency,
			RatePerSecond:     cfg.Replay.RatePerSecond,
			ReconcileInterval: cfg.Replay.ReconcileInterval,
		})

		limit := c.Int("limit")
		log.Printf("dispatch: replaying up to %d clean trips", limit)

		start := time.Now()
		summary, err := scheduler.Replay(ctx, limit)
		if err != nil {
			return err
		}

		log.Printf(
			"dispatch: replay done in %s — completed=%d expired=%d failed=%d",
			time.Since(start).Round(time.Millisecond), summary.Completed, summary.Expired, summary.Failed,
		)
		return nil
	},
}
