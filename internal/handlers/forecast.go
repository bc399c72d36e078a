package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"stock-forecast-api/internal/models"
	"stock-forecast-api/internal/montecarlo"
)

const (
	maxTickers     = 50
	maxSimulations = 100000
	maxDays        = 365

	// Each forecast holds simulations*days prices in memory until it is
	// reduced; 5M cells is 40 MB.
	maxForecastCells = 5_000_000
	maxBatchCells    = 50_000_000
)

// ForecastService is the subset of the orchestrator the handlers need.
type ForecastService interface {
	DefaultSimulationConfig() montecarlo.SimulationConfig
	GenerateForecast(ctx context.Context, symbol string, cfg montecarlo.SimulationConfig, force bool) (*models.StockForecast, error)
	GenerateBatch(ctx context.Context, symbols []string, cfg montecarlo.SimulationConfig) (*models.ForecastResponse, error)
	GetTickerData(ctx context.Context, symbol string) (*models.TickerData, error)
	RefreshCache(ctx context.Context) error
}

type ForecastHandler struct {
	service ForecastService
}

func NewForecastHandler(service ForecastService) *ForecastHandler {
	return &ForecastHandler{
		service: service,
	}
}

// GetStock handles GET /v1/stocks/:symbol
func (h *ForecastHandler) GetStock(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	symbol := c.Params("symbol")
	if symbol == "" {
		return badRequest(c, "Symbol is required", "", "symbol")
	}

	cfg, err := h.queryConfig(c)
	if err != nil {
		return writeError(c, err)
	}

	forecast, err := h.service.GenerateForecast(ctx, symbol, cfg, c.QueryBool("refresh", false))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(forecast)
}

// GetForecast handles POST /v1/forecast
func (h *ForecastHandler) GetForecast(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	var req models.ForecastRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", err.Error(), "")
	}

	// Validate request
	if len(req.Tickers) == 0 {
		return badRequest(c, "Tickers are required", "Please provide at least one ticker symbol", "tickers")
	}

	if len(req.Tickers) > maxTickers {
		return badRequest(c, "Too many tickers", "Maximum 50 tickers allowed per request", "tickers")
	}

	cfg := h.service.DefaultSimulationConfig()
	if req.Simulations != nil {
		cfg.NumSimulations = *req.Simulations
	}
	if req.Days != nil {
		cfg.NumDays = *req.Days
	}
	if req.Seed != nil {
		cfg = cfg.WithSeed(*req.Seed)
	}
	if err := checkLimits(cfg); err != nil {
		return writeError(c, err)
	}
	if cells := len(req.Tickers) * cfg.NumSimulations * cfg.NumDays; cells > maxBatchCells {
		return writeError(c, &montecarlo.InvalidConfigurationError{
			Field:      "tickers",
			Value:      len(req.Tickers),
			Constraint: "tickers*simulations*days must be <= 50000000",
		})
	}

	forecast, err := h.service.GenerateBatch(ctx, req.Tickers, cfg)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(forecast)
}

// GetTickerData handles GET /v1/tickers/:symbol
func (h *ForecastHandler) GetTickerData(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	symbol := c.Params("symbol")
	if symbol == "" {
		return badRequest(c, "Symbol is required", "", "symbol")
	}

	data, err := h.service.GetTickerData(ctx, symbol)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(data)
}

// RefreshCache handles POST /v1/admin/refresh
func (h *ForecastHandler) RefreshCache(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 60*time.Second)
	defer cancel()

	err := h.service.RefreshCache(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to refresh cache",
			Message: err.Error(),
			Code:    fiber.StatusInternalServerError,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Cache refreshed successfully",
		"time":    time.Now(),
	})
}

// queryConfig overlays ?simulations=&days=&seed= on the defaults.
func (h *ForecastHandler) queryConfig(c *fiber.Ctx) (montecarlo.SimulationConfig, error) {
	cfg := h.service.DefaultSimulationConfig()

	ints := []struct {
		key string
		dst *int
	}{
		{"simulations", &cfg.NumSimulations},
		{"days", &cfg.NumDays},
	}
	for _, q := range ints {
		raw := c.Query(q.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, &montecarlo.InvalidConfigurationError{Field: q.key, Value: raw, Constraint: "must be an integer"}
		}
		*q.dst = n
	}

	if raw := c.Query("seed"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, &montecarlo.InvalidConfigurationError{Field: "seed", Value: raw, Constraint: "must be an integer"}
		}
		cfg = cfg.WithSeed(seed)
	}

	return cfg, checkLimits(cfg)
}

// checkLimits caps request-supplied sizes; lower bounds are enforced by the
// simulator itself.
func checkLimits(cfg montecarlo.SimulationConfig) error {
	if cfg.NumSimulations > maxSimulations {
		return &montecarlo.InvalidConfigurationError{Field: "numSimulations", Value: cfg.NumSimulations, Constraint: "must be <= 100000"}
	}
	if cfg.NumDays > maxDays {
		return &montecarlo.InvalidConfigurationError{Field: "numDays", Value: cfg.NumDays, Constraint: "must be <= 365"}
	}
	if cfg.NumSimulations > 0 && cfg.NumDays > 0 && cfg.NumSimulations*cfg.NumDays > maxForecastCells {
		return &montecarlo.InvalidConfigurationError{Field: "numSimulations", Value: cfg.NumSimulations, Constraint: "simulations*days must be <= 5000000"}
	}
	return nil
}
