package services

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock-forecast-api/internal/config"
	"stock-forecast-api/internal/models"
	"stock-forecast-api/internal/montecarlo"
	"stock-forecast-api/internal/telemetry"
)

const dateLayout = "2006-01-02"

// ErrEmptySymbol is returned for a blank ticker symbol.
var ErrEmptySymbol = errors.New("symbol is required")

// ForecastOrchestrator coordinates the forecast generation pipeline
type ForecastOrchestrator struct {
	market        *MarketDataService
	cache         *CacheService
	simulator     *montecarlo.Simulator
	defaults      montecarlo.SimulationConfig
	logger        *zap.Logger
	tracer        trace.Tracer
	now           func() time.Time
	maxConcurrent int
}

// OrchestratorOption configures a ForecastOrchestrator.
type OrchestratorOption func(*ForecastOrchestrator)

// WithClock overrides the clock used to label forecast dates.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *ForecastOrchestrator) {
		o.now = now
	}
}

func NewForecastOrchestrator(cfg *config.Config, market *MarketDataService, cache *CacheService, simulator *montecarlo.Simulator, logger *zap.Logger, opts ...OrchestratorOption) *ForecastOrchestrator {
	o := &ForecastOrchestrator{
		market:        market,
		cache:         cache,
		simulator:     simulator,
		defaults:      cfg.Forecast.SimulationConfig(),
		logger:        logger,
		tracer:        telemetry.Tracer(),
		now:           time.Now,
		maxConcurrent: cfg.MarketData.MaxConcurrentFetches,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DefaultSimulationConfig returns the configured simulation defaults.
func (o *ForecastOrchestrator) DefaultSimulationConfig() montecarlo.SimulationConfig {
	return o.defaults
}

// GenerateForecast fetches history for symbol, simulates simCfg.NumDays
// ahead and labels each day with a calendar date counted from today. A cached
// forecast is returned unless force is set.
func (o *ForecastOrchestrator) GenerateForecast(ctx context.Context, symbol string, simCfg montecarlo.SimulationConfig, force bool) (*models.StockForecast, error) {
	return o.generate(ctx, symbol, simCfg, force, nil)
}

// generate runs the pipeline for one symbol. A non-nil quotes map holds
// quotes prefetched for a batch; symbols missing from it fall back to
// history without another quote request.
func (o *ForecastOrchestrator) generate(ctx context.Context, symbol string, simCfg montecarlo.SimulationConfig, force bool, quotes map[string]*models.TickerData) (*models.StockForecast, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	if err := simCfg.Validate(); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "forecast.Generate", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.Int("simulations", simCfg.NumSimulations),
		attribute.Int("days", simCfg.NumDays),
	))
	defer span.End()

	cacheKey := o.generateCacheKey(symbol, simCfg)
	if !force {
		if cached, found := o.cache.GetForecast(ctx, cacheKey); found {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			cached.FuturePredictions = relabelPredictions(o.now(), cached.FuturePredictions)
			return cached, nil
		}
	}

	// Step 1: history and quote concurrently; the quote is optional
	var (
		series montecarlo.HistoricalSeries
		quote  *models.TickerData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		series, err = o.market.GetHistory(gctx, symbol)
		if err != nil {
			return fmt.Errorf("fetch history for %s: %w", symbol, err)
		}
		return nil
	})
	g.Go(func() error {
		if quotes != nil {
			quote = quotes[symbol]
			return nil
		}
		q, err := o.market.GetQuote(gctx, symbol)
		if err != nil {
			o.logger.Warn("quote unavailable, using history", zap.String("symbol", symbol), zap.Error(err))
			return nil
		}
		quote = q
		return nil
	})
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Step 2: simulate
	stats, points, err := o.simulator.Forecast(ctx, series, simCfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Step 3: build response
	generatedAt := o.now()
	forecast := &models.StockForecast{
		Info:              buildInfo(symbol, quote, series),
		History:           buildHistory(series),
		FuturePredictions: buildPredictions(generatedAt, points),
		Statistics: models.ReturnSummary{
			MeanReturn:  stats.MeanReturn,
			Volatility:  stats.Volatility,
			Simulations: simCfg.NumSimulations,
			Days:        simCfg.NumDays,
			Seeded:      simCfg.Seed != nil,
		},
		GeneratedAt: generatedAt,
	}

	if err := o.cache.SetForecast(ctx, cacheKey, forecast); err != nil {
		o.logger.Warn("cache forecast", zap.String("symbol", symbol), zap.Error(err))
	}

	o.logger.Info("forecast generated",
		zap.String("symbol", symbol),
		zap.Int("history_points", len(series)),
		zap.Int("simulations", simCfg.NumSimulations),
		zap.Int("days", simCfg.NumDays),
		zap.Float64("volatility", stats.Volatility),
	)

	return forecast, nil
}

// GenerateBatch forecasts every symbol concurrently. Per-symbol failures are
// reported in Errors; the call fails only when no symbol succeeds.
func (o *ForecastOrchestrator) GenerateBatch(ctx context.Context, symbols []string, simCfg montecarlo.SimulationConfig) (*models.ForecastResponse, error) {
	if err := simCfg.Validate(); err != nil {
		return nil, err
	}

	symbols = normalizeSymbols(symbols)
	forecasts, errs := o.runBatch(ctx, symbols, simCfg, false)

	response := &models.ForecastResponse{
		Forecasts:   make([]models.StockForecast, 0, len(symbols)),
		GeneratedAt: o.now(),
	}
	var first error
	for i, symbol := range symbols {
		if errs[i] != nil {
			if first == nil {
				first = errs[i]
			}
			if response.Errors == nil {
				response.Errors = make(map[string]string)
			}
			response.Errors[symbol] = errs[i].Error()
			continue
		}
		response.Forecasts = append(response.Forecasts, *forecasts[i])
	}

	if len(response.Forecasts) == 0 && first != nil {
		return nil, first
	}
	return response, nil
}

// Refresh regenerates the default forecast for each symbol, bypassing the cache.
func (o *ForecastOrchestrator) Refresh(ctx context.Context, symbols []string) error {
	symbols = normalizeSymbols(symbols)
	_, errs := o.runBatch(ctx, symbols, o.defaults, true)
	return errors.Join(errs...)
}

// GetTickerData retrieves data for a single ticker
func (o *ForecastOrchestrator) GetTickerData(ctx context.Context, symbol string) (*models.TickerData, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, ErrEmptySymbol
	}
	return o.market.GetQuote(ctx, symbol)
}

// RefreshCache clears all caches
func (o *ForecastOrchestrator) RefreshCache(ctx context.Context) error {
	return o.cache.Purge(ctx)
}

func (o *ForecastOrchestrator) runBatch(ctx context.Context, symbols []string, simCfg montecarlo.SimulationConfig, force bool) ([]*models.StockForecast, []error) {
	forecasts := make([]*models.StockForecast, len(symbols))
	errs := make([]error, len(symbols))

	quotes, err := o.market.FetchBatch(ctx, symbols)
	if err != nil {
		o.logger.Warn("quote prefetch failed, using history", zap.Strings("symbols", symbols), zap.Error(err))
	}
	if quotes == nil {
		quotes = map[string]*models.TickerData{}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, max(o.maxConcurrent, 1))
	for i, symbol := range symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			forecasts[i], errs[i] = o.generate(ctx, symbol, simCfg, force, quotes)
		}()
	}
	wg.Wait()

	return forecasts, errs
}

// Helper functions

func (o *ForecastOrchestrator) generateCacheKey(symbol string, cfg montecarlo.SimulationConfig) string {
	seed := "-"
	if cfg.Seed != nil {
		seed = fmt.Sprintf("%d", *cfg.Seed)
	}
	key := fmt.Sprintf("%s|%d|%d|%s", symbol, cfg.NumSimulations, cfg.NumDays, seed)
	return fmt.Sprintf("%x", md5.Sum([]byte(key)))
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func buildInfo(symbol string, quote *models.TickerData, series montecarlo.HistoricalSeries) models.StockInfo {
	if quote != nil {
		return models.StockInfo{
			ShortName:     quote.ShortName,
			Symbol:        symbol,
			CurrentPrice:  quote.Price,
			PreviousClose: quote.PreviousClose,
			Volume:        quote.Volume,
		}
	}

	info := models.StockInfo{ShortName: symbol, Symbol: symbol}
	if n := len(series); n > 0 {
		info.CurrentPrice = series[n-1].Close.InexactFloat64()
		if n > 1 {
			info.PreviousClose = series[n-2].Close.InexactFloat64()
		}
	}
	return info
}

func buildHistory(series montecarlo.HistoricalSeries) []models.HistoryPoint {
	history := make([]models.HistoryPoint, len(series))
	for i, p := range series {
		history[i] = models.HistoryPoint{
			Date:  p.Date.Format(dateLayout),
			Close: montecarlo.Round2(p.Close.InexactFloat64()),
		}
	}
	return history
}

// relabelPredictions returns a copy of predictions dated from today, so a
// forecast served from cache after midnight starts on the next day.
func relabelPredictions(today time.Time, predictions []models.FuturePrediction) []models.FuturePrediction {
	out := make([]models.FuturePrediction, len(predictions))
	for i, p := range predictions {
		p.Date = today.AddDate(0, 0, i+1).Format(dateLayout)
		out[i] = p
	}
	return out
}

func buildPredictions(today time.Time, points montecarlo.ForecastSeries) []models.FuturePrediction {
	predictions := make([]models.FuturePrediction, len(points))
	for i, p := range points {
		predictions[i] = models.FuturePrediction{
			Date:           today.AddDate(0, 0, p.DayOffset).Format(dateLayout),
			PredictedClose: p.PredictedClose,
			Lower:          p.Lower,
			Upper:          p.Upper,
		}
	}
	return predictions
}
