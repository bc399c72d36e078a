package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock-forecast-api/internal/config"
	"stock-forecast-api/internal/models"
	"stock-forecast-api/internal/montecarlo"
)

// QuoteSource fetches a latest quote.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.TickerData, error)
}

// HistorySource fetches daily closes over a range such as "1mo".
type HistorySource interface {
	GetHistory(ctx context.Context, symbol, rangeSpec string) (montecarlo.HistoricalSeries, error)
}

// MarketDataService handles concurrent market data fetching
type MarketDataService struct {
	cache         *CacheService
	logger        *zap.Logger
	history       HistorySource
	quotes        []QuoteSource
	historyRange  string
	maxConcurrent int
	fetchTimeout  time.Duration
}

// NewMarketDataService fans quote requests out to every source in quotes and
// reads history from history.
func NewMarketDataService(cfg *config.Config, cache *CacheService, logger *zap.Logger, history HistorySource, quotes ...QuoteSource) *MarketDataService {
	return &MarketDataService{
		cache:         cache,
		logger:        logger,
		history:       history,
		quotes:        quotes,
		historyRange:  cfg.MarketData.HistoryRange,
		maxConcurrent: cfg.MarketData.MaxConcurrentFetches,
		fetchTimeout:  5 * time.Second,
	}
}

// FetchBatch fetches quotes for multiple tickers with bounded concurrency.
// It fails only when every ticker fails.
func (s *MarketDataService) FetchBatch(ctx context.Context, tickers []string) (map[string]*models.TickerData, error) {
	results := make(map[string]*models.TickerData, len(tickers))
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)

	for _, ticker := range tickers {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			data, err := s.GetQuote(fetchCtx, ticker)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to fetch %s: %w", ticker, err))
				return nil
			}
			results[strings.ToUpper(ticker)] = data
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 && len(results) == 0 {
		return nil, fmt.Errorf("all fetches failed: %w", errors.Join(errs...))
	}

	return results, nil
}

// GetQuote returns a cached quote or the first successful answer from the
// quote sources.
func (s *MarketDataService) GetQuote(ctx context.Context, symbol string) (*models.TickerData, error) {
	symbol = strings.ToUpper(symbol)

	if cached, found := s.cache.GetTickerData(ctx, symbol); found {
		return cached, nil
	}
	if len(s.quotes) == 0 {
		return nil, fmt.Errorf("no quote sources configured")
	}

	type result struct {
		data *models.TickerData
		err  error
	}

	// Fan-out to every source, fan-in on the first success
	resultCh := make(chan result, len(s.quotes))
	for _, src := range s.quotes {
		go func() {
			data, err := src.GetQuote(ctx, symbol)
			resultCh <- result{data, err}
		}()
	}

	var errs []error
	for range s.quotes {
		select {
		case res := <-resultCh:
			if res.err == nil {
				if err := s.cache.SetTickerData(ctx, symbol, res.data); err != nil {
					s.logger.Warn("cache ticker data", zap.String("symbol", symbol), zap.Error(err))
				}
				return res.data, nil
			}
			errs = append(errs, res.err)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all sources failed for %s: %w", symbol, errors.Join(errs...))
}

// GetHistory returns the configured range of daily closes for symbol.
func (s *MarketDataService) GetHistory(ctx context.Context, symbol string) (montecarlo.HistoricalSeries, error) {
	return s.history.GetHistory(ctx, strings.ToUpper(symbol), s.historyRange)
}
