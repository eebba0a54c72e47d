package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/roomguard/api/routes"
	"github.com/angelmondragon/roomguard/internal/memberships"
	"github.com/angelmondragon/roomguard/internal/rooms"
	"github.com/angelmondragon/roomguard/internal/users"
	"github.com/angelmondragon/roomguard/pkg/auth/session"
	"github.com/angelmondragon/roomguard/pkg/config"
	"github.com/angelmondragon/roomguard/pkg/db"
	"github.com/angelmondragon/roomguard/pkg/logger"
	"github.com/angelmondragon/roomguard/pkg/metrics"
	"github.com/angelmondragon/roomguard/pkg/migrate"
	"github.com/angelmondragon/roomguard/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	membershipMetrics := metrics.NewMembershipMetrics(registry)

	userRepo := users.NewRepository(dbClient.DB())
	roomRepo := rooms.NewRepository(dbClient.DB())
	membershipRepo := memberships.NewRepository(dbClient.DB())

	roomService, err := rooms.NewService(roomRepo, membershipRepo, userRepo, cfg.App.ServerName, membershipMetrics)
	if err != nil {
		return err
	}
	membershipService, err := memberships.NewService(roomRepo, userRepo, membershipRepo, membershipMetrics, logg)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	servers := []*http.Server{{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, sessionManager, roomService, membershipService),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Metrics.Enabled {
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           routes.NewMetricsRouter(registry, logg),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logg.Info(logg.WithFields(gctx, map[string]any{
				"env":         cfg.App.Env,
				"addr":        srv.Addr,
				"server_name": cfg.App.ServerName,
			}), "starting http server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "shutting down http servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownWait)
		defer cancel()
		var errs error
		for _, srv := range servers {
			errs = multierr.Append(errs, srv.Shutdown(shutdownCtx))
		}
		return errs
	})

	return g.Wait()
}
