package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"findixi/internal/config"
	"findixi/internal/handlers"
	"findixi/internal/jobs/background"
	"findixi/internal/middleware"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var noJobs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the token refresh scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, !noJobs)
		},
	}
	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "do not start the background token refresh job")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, withJobs bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise: %w", err)
	}
	defer c.Close()

	e, err := newServer(cfg, c)
	if err != nil {
		return err
	}

	if withJobs && cfg.Jobs.RefreshIntervalMinutes > 0 {
		scheduler, err := background.NewJobScheduler(c.sweeper, time.Duration(cfg.Jobs.RefreshIntervalMinutes)*time.Minute)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				log.Printf("WARN: scheduler shutdown: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("Findixi server %s starting on port %d", version, cfg.Server.Port)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ERROR: server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newServer(cfg *config.Config, c *components) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())

	optionalUser, err := middleware.OptionalUser(cfg.Auth)
	if err != nil {
		return nil, err
	}

	var cachePinger handlers.Pinger
	if c.cache != nil {
		cachePinger = c.cache
	}
	health := handlers.NewHealthHandlers(c.pool, cachePinger, version)
	e.GET("/health", health.LivenessCheck)
	e.GET("/health/ready", health.ReadinessCheck)

	v1 := e.Group("/v1")
	v1.Use(middleware.VersionHeader("v1"))

	orderHandlers := handlers.NewOrderHandlers(c.orders, c.cache, cfg.Orders.RateLimitPerMinute)
	v1.POST("/orders", orderHandlers.CreateOrder, optionalUser)
	v1.GET("/orders/status/:token", orderHandlers.GetOrderStatus)

	cloverHandlers := handlers.NewCloverHandlers(c.taxSync, c.sweeper)
	admin := v1.Group("/clover", middleware.AdminSecret(cfg.Server.AdminSecret))
	admin.POST("/tax-rates/sync", cloverHandlers.SyncTaxRates)
	admin.POST("/refresh-tokens", cloverHandlers.RefreshTokens)

	if cfg.Server.AdminSecret == "" {
		log.Printf("WARN: ADMIN_SECRET not set, /v1/clover maintenance endpoints are open")
	}
	return e, nil
}
