package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stock-forecast-api/internal/models"
)

const defaultBaseURL = "https://www.alphavantage.co/query"

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different query endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
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

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol           string `json:"01. symbol"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.TickerData, error) {
	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", symbol)
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpha vantage returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var quoteResp globalQuoteResponse
	if err := json.Unmarshal(body, &quoteResp); err != nil {
		return nil, fmt.Errorf("decode alpha vantage quote: %w", err)
	}

	// Throttled responses carry a note instead of a quote
	if msg := quoteResp.Note + quoteResp.Information; msg != "" {
		return nil, fmt.Errorf("alpha vantage: %s", msg)
	}

	q := quoteResp.GlobalQuote
	if q.Symbol == "" {
		return nil, fmt.Errorf("no data returned for symbol %s", symbol)
	}

	price, err := strconv.ParseFloat(q.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", q.Price, err)
	}
	change, err := strconv.ParseFloat(q.Change, 64)
	if err != nil {
		return nil, fmt.Errorf("parse change %q: %w", q.Change, err)
	}
	volume, _ := strconv.ParseInt(q.Volume, 10, 64)

	previousClose, err := strconv.ParseFloat(q.PreviousClose, 64)
	if err != nil {
		previousClose = price - change
	}

	changePercent, err := strconv.ParseFloat(strings.TrimSuffix(q.ChangePercent, "%"), 64)
	if err != nil && previousClose > 0 {
		changePercent = (change / previousClose) * 100
	}

	return &models.TickerData{
		Symbol:        symbol,
		ShortName:     symbol,
		Price:         price,
		PreviousClose: previousClose,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        volume,
		LastUpdated:   time.Now(),
		Source:        "alphavantage",
	}, nil
}
