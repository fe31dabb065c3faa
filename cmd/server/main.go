package main // Entry point of the reservation API

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/clock"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/metrics"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/router"
	"github.com/iliyamo/table-reservation/internal/service"
)

// leaderKey is the Redis key of the scheduler leader lock.
const leaderKey = "table-reservation:scheduler:leader"

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.EnsureSchema(context.Background(), db); err != nil {
			log.WithError(err).Fatal("apply schema")
		}
	}

	// Redis is optional: without it the API is not rate limited and every
	// replica runs the tick.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unreachable; rate limiting and scheduler leader election disabled")
	} else {
		defer rdb.Close()
	}

	store := repository.NewSQLStore(db)
	users := repository.NewUserRepo(db)
	authz := service.NewMembershipAuthorizer(users, users)
	clk := clock.System{}

	opts := service.SchedulerOptions{Interval: cfg.SchedulerInterval}
	if rdb != nil {
		opts.Leader = lock.New(rdb, leaderKey, cfg.SchedulerLeaderTTL)
	}
	scheduler := service.NewScheduler(store, clk, log, opts)

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = queue.NewPublisher(cfg.AMQPURL)
	}
	reservations := service.NewReservationService(store, authz, scheduler, events, clk, log)
	tables := service.NewTableService(store, authz, scheduler, clk, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(metrics.Middleware())
	router.RegisterRoutes(e, db)
	router.RegisterVenue(e,
		handler.NewReservationHandler(reservations, log),
		handler.NewTableHandler(tables, scheduler, log),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SchedulerEnabled {
		if err := scheduler.Start(ctx); err != nil {
			log.WithError(err).Fatal("start scheduler")
		}
	}

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	scheduler.Stop(shutdownCtx)
}
