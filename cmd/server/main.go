package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"stock-forecast-api/internal/config"
	"stock-forecast-api/internal/handlers"
	"stock-forecast-api/internal/logger"
	"stock-forecast-api/internal/montecarlo"
	"stock-forecast-api/internal/scheduler"
	"stock-forecast-api/internal/services"
	"stock-forecast-api/internal/telemetry"
	"stock-forecast-api/pkg/alphavantage"
	"stock-forecast-api/pkg/yahoo"
)

const version = "1.2.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stock-forecast-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "stock-forecast-api",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	// Initialize services
	cacheService := services.NewCacheService(ctx, cfg, log)

	yahooClient := yahoo.NewClient(yahoo.WithBaseURL(cfg.MarketData.YahooBaseURL))
	var quotes []services.QuoteSource
	if cfg.MarketData.AlphaVantageKey != "" {
		quotes = append(quotes, alphavantage.NewClient(cfg.MarketData.AlphaVantageKey,
			alphavantage.WithBaseURL(cfg.MarketData.AlphaVantageBaseURL)))
	}
	quotes = append(quotes, yahooClient)
	marketDataService := services.NewMarketDataService(cfg, cacheService, log, yahooClient, quotes...)

	simulator := montecarlo.NewSimulator(
		montecarlo.WithWorkers(cfg.Forecast.Workers),
		montecarlo.WithLogger(log),
		montecarlo.WithTracer(telemetry.Tracer()),
	)
	forecastOrchestrator := services.NewForecastOrchestrator(cfg, marketDataService, cacheService, simulator, log)

	warmer := scheduler.NewWarmer(cfg.Warmer.Cron, cfg.Warmer.Symbols, forecastOrchestrator, log)
	if err := warmer.Start(); err != nil {
		return err
	}

	// Initialize handlers
	forecastHandler := handlers.NewForecastHandler(forecastOrchestrator)
	healthHandler := handlers.NewHealthHandler(version, cacheService)

	app := fiber.New(fiber.Config{
		StrictRouting: true,
		CaseSensitive: true,
		ServerHeader:  "Stock-Forecast-API",
		AppName:       "Stock Forecast API v" + version,
		ReadTimeout:   time.Second * 10,
		WriteTimeout:  time.Second * 30,
		BodyLimit:     cfg.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler:  handlers.CustomErrorHandler,

		EnablePrintRoutes: cfg.IsDevelopment(),
	})

	// Middleware stack
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimit,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		},
	}))

	// Routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Stock Forecast API",
			"version": version,
			"status":  "running",
		})
	})

	app.Get("/health", healthHandler.Health)
	app.Get("/health/ready", healthHandler.Ready)

	v1 := app.Group("/v1")
	v1.Get("/stocks/:symbol", forecastHandler.GetStock)
	v1.Post("/forecast", forecastHandler.GetForecast)
	v1.Get("/tickers/:symbol", forecastHandler.GetTickerData)
	v1.Post("/admin/refresh", forecastHandler.RefreshCache)

	if warmer.Enabled() {
		go func() {
			if err := warmer.RunOnce(ctx); err != nil {
				log.Warn("initial cache warm failed", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(":" + cfg.Server.Port)
	}()

	log.Info("stock forecast api started",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Environment),
		zap.Int("workers", simulator.Workers()),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-listenErr:
		if err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	case sig := <-quit:
		log.Info("shutting down gracefully", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	warmer.Stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := cacheService.Close(); err != nil {
		log.Warn("close cache", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("flush traces", zap.Error(err))
	}

	log.Info("server shutdown complete")
	return nil
}
