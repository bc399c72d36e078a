package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-forecast-api/internal/models"
	"stock-forecast-api/internal/montecarlo"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	userAgent      = "Mozilla/5.0 (compatible; stock-forecast-api/1.0)"
)

// ErrSymbolNotFound is returned when Yahoo has no chart for the symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different chart endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol               string  `json:"symbol"`
		ShortName            string  `json:"shortName"`
		ExchangeTimezoneName string  `json:"exchangeTimezoneName"`
		RegularMarketPrice   float64 `json:"regularMarketPrice"`
		PreviousClose        float64 `json:"previousClose"`
		ChartPreviousClose   float64 `json:"chartPreviousClose"`
		RegularMarketVolume  int64   `json:"regularMarketVolume"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// GetQuote returns the latest quote for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.TickerData, error) {
	result, err := c.chart(ctx, symbol, "1d")
	if err != nil {
		return nil, err
	}

	price := result.Meta.RegularMarketPrice
	previousClose := result.Meta.PreviousClose
	if previousClose == 0 {
		previousClose = result.Meta.ChartPreviousClose
	}
	change := price - previousClose
	changePercent := 0.0
	if previousClose > 0 {
		changePercent = (change / previousClose) * 100
	}

	shortName := result.Meta.ShortName
	if shortName == "" {
		shortName = symbol
	}

	return &models.TickerData{
		Symbol:        symbol,
		ShortName:     shortName,
		Price:         price,
		PreviousClose: previousClose,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        result.Meta.RegularMarketVolume,
		LastUpdated:   time.Now(),
		Source:        "yahoo",
	}, nil
}

// GetHistory returns daily closes over rangeSpec (e.g. "1mo"), oldest
// first. Missing and non-positive closes are dropped.
func (c *Client) GetHistory(ctx context.Context, symbol, rangeSpec string) (montecarlo.HistoricalSeries, error) {
	result, err := c.chart(ctx, symbol, rangeSpec)
	if err != nil {
		return nil, err
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no historical data for %s: %w", symbol, ErrSymbolNotFound)
	}

	loc := time.UTC
	if tz := result.Meta.ExchangeTimezoneName; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	closes := result.Indicators.Quote[0].Close
	series := make(montecarlo.HistoricalSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		series = append(series, montecarlo.PricePoint{
			Date:  time.Unix(ts, 0).In(loc),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})

	return series, nil
}

func (c *Client) chart(ctx context.Context, symbol, rangeSpec string) (*chartResult, error) {
	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("range", rangeSpec)
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(symbol), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("yahoo finance has no chart for %s: %w", symbol, ErrSymbolNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo finance returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var chartResp chartResponse
	if err := json.Unmarshal(body, &chartResp); err != nil {
		return nil, fmt.Errorf("decode yahoo chart: %w", err)
	}

	if len(chartResp.Chart.Result) == 0 {
		if e := chartResp.Chart.Error; e != nil && e.Description != "" {
			return nil, fmt.Errorf("%s: %s: %w", symbol, e.Description, ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("no data returned for symbol %s: %w", symbol, ErrSymbolNotFound)
	}

	return &chartResp.Chart.Result[0], nil
}
