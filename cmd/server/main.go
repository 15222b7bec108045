package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/access"
	"github.com/iliyamo/clinic-manager/internal/app"
	"github.com/iliyamo/clinic-manager/internal/config"
	"github.com/iliyamo/clinic-manager/internal/handler"
	"github.com/iliyamo/clinic-manager/internal/logger"
	"github.com/iliyamo/clinic-manager/internal/middleware"
	"github.com/iliyamo/clinic-manager/internal/notify"
	"github.com/iliyamo/clinic-manager/internal/queue"
	"github.com/iliyamo/clinic-manager/internal/router"
	"github.com/iliyamo/clinic-manager/internal/service"
	"github.com/iliyamo/clinic-manager/internal/utils"
)

func main() {
	cfg := config.Load()
	logCfg := config.LoadLogConfig()
	lg, err := logger.New(logCfg.Level, logCfg.Format, "clinic-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	core, err := app.Open(startCtx, cfg, lg)
	cancel()
	if err != nil {
		lg.Fatal("startup failed", zap.Error(err))
	}
	defer func() {
		if err := core.Close(); err != nil {
			lg.Warn("closing connections", zap.Error(err))
		}
	}()

	rdb := config.NewRedisClient(lg)
	if rdb != nil {
		defer rdb.Close()
	}

	// mail: direct delivery, or publish to notify.email and deliver from a
	// consumer running in this process
	mailCfg := config.LoadMailConfig()
	direct, err := notify.NewSender(mailCfg, lg)
	if err != nil {
		lg.Fatal("mail sender", zap.Error(err))
	}
	var mail notify.Sender = direct
	if mailCfg.Async {
		pub := service.NewPublisher(cfg.AMQPURL, lg)
		defer pub.Close()
		mail = pub
		go func() {
			if err := queue.StartEmailConsumer(ctx, cfg.AMQPURL, direct, lg); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("email consumer stopped", zap.Error(err))
			}
		}()
	}

	var otp *service.OTPService
	if rdb != nil {
		otpCfg := config.LoadOTPConfig()
		otp = service.NewOTPService(service.NewRedisOTPStore(rdb, otpCfg.Prefix), core.Models, mail, otpCfg, lg)
	}

	deps := handler.Deps{Models: core.Models, Timeout: cfg.QueryTimeout, Logger: lg}
	appointments := service.NewAppointmentService(core.Models, mail, lg)
	h := router.Handlers{
		Auth:          handler.NewAuthHandler(deps, cfg, otp),
		Users:         handler.NewUserHandler(deps, cfg.BcryptCost),
		Organizations: handler.NewOrganizationHandler(deps, core.OrgService),
		Appointments:  handler.NewAppointmentHandler(deps, appointments),
		Patients:      handler.NewPatients(deps),
		Doctors:       handler.NewDoctors(deps),
		Drugs:         handler.NewDrugs(deps),
		Services:      handler.NewServices(deps),
		Slots:         handler.NewSlots(deps),
	}

	rateLimit := middleware.RateLimit(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb), lg)
	chain := router.Chain{
		RootDomain: middleware.RootDomain(core.Resolver),
		Tenant:     middleware.Tenant(core.Resolver, core.Directory, core.Registry, lg),
		Session: middleware.Session(func(raw string) (*access.Session, error) {
			return utils.ParseAccessToken(cfg.JWTSecret, raw)
		}),
		RateLimit: rateLimit,
		Authorize: middleware.Authorize(access.DefaultTable),
		Cache:     middleware.ResponseCache(config.LoadCacheConfig(), rdb, lg),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(lg))
	e.Use(middleware.Recover(lg))
	router.RegisterRoutes(e, core.Registry, chain, h)
	router.RegisterTenant(e, chain, h)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Warn("shutdown", zap.Error(err))
	}
}
