package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-forecast-api/internal/models"
	"stock-forecast-api/internal/montecarlo"
	"stock-forecast-api/pkg/yahoo"
)

type fakeService struct {
	lastSymbol  string
	lastSymbols []string
	lastCfg     montecarlo.SimulationConfig
	lastForce   bool
	err         error
	purged      bool
}

func (f *fakeService) DefaultSimulationConfig() montecarlo.SimulationConfig {
	return montecarlo.DefaultSimulationConfig()
}

func (f *fakeService) GenerateForecast(_ context.Context, symbol string, cfg montecarlo.SimulationConfig, force bool) (*models.StockForecast, error) {
	f.lastSymbol, f.lastCfg, f.lastForce = symbol, cfg, force
	if f.err != nil {
		return nil, f.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &models.StockForecast{
		Info: models.StockInfo{Symbol: strings.ToUpper(symbol)},
		FuturePredictions: []models.FuturePrediction{
			{Date: "2025-01-02", PredictedClose: 101.5, Lower: 99.1, Upper: 104.2},
		},
	}, nil
}

func (f *fakeService) GenerateBatch(_ context.Context, symbols []string, cfg montecarlo.SimulationConfig) (*models.ForecastResponse, error) {
	f.lastSymbols, f.lastCfg = symbols, cfg
	if f.err != nil {
		return nil, f.err
	}
	resp := &models.ForecastResponse{}
	for _, s := range symbols {
		resp.Forecasts = append(resp.Forecasts, models.StockForecast{Info: models.StockInfo{Symbol: s}})
	}
	return resp, nil
}

func (f *fakeService) GetTickerData(_ context.Context, symbol string) (*models.TickerData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.TickerData{Symbol: symbol, Price: 12.5}, nil
}

func (f *fakeService) RefreshCache(context.Context) error {
	f.purged = true
	return f.err
}

type fakeChecker map[string]string

func (f fakeChecker) Ready(context.Context) map[string]string { return f }

func newApp(svc ForecastService, checker ReadinessChecker) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: CustomErrorHandler})
	h := NewForecastHandler(svc)
	health := NewHealthHandler("test", checker)

	app.Get("/health", health.Health)
	app.Get("/health/ready", health.Ready)
	v1 := app.Group("/v1")
	v1.Get("/stocks/:symbol", h.GetStock)
	v1.Post("/forecast", h.GetForecast)
	v1.Get("/tickers/:symbol", h.GetTickerData)
	v1.Post("/admin/refresh", h.RefreshCache)
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func TestGetStock_Defaults(t *testing.T) {
	svc := &fakeService{}
	status, body := do(t, newApp(svc, nil), httptest.NewRequest(http.MethodGet, "/v1/stocks/aapl", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "aapl", svc.lastSymbol)
	assert.Equal(t, 1000, svc.lastCfg.NumSimulations)
	assert.Equal(t, 10, svc.lastCfg.NumDays)
	assert.Nil(t, svc.lastCfg.Seed)
	assert.False(t, svc.lastForce)

	preds := body["future_predictions"].([]interface{})
	first := preds[0].(map[string]interface{})
	assert.Equal(t, 101.5, first["predictedClose"])
	assert.Equal(t, 99.1, first["lower"])
	assert.Equal(t, 104.2, first["upper"])
	assert.Equal(t, "2025-01-02", first["date"])
}

func TestGetStock_QueryOverrides(t *testing.T) {
	svc := &fakeService{}
	status, _ := do(t, newApp(svc, nil),
		httptest.NewRequest(http.MethodGet, "/v1/stocks/MSFT?simulations=500&days=5&seed=9&refresh=true", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 500, svc.lastCfg.NumSimulations)
	assert.Equal(t, 5, svc.lastCfg.NumDays)
	require.NotNil(t, svc.lastCfg.Seed)
	assert.Equal(t, int64(9), *svc.lastCfg.Seed)
	assert.True(t, svc.lastForce)
}

func TestGetStock_ValidationErrors(t *testing.T) {
	tests := []struct {
		query string
		field string
	}{
		{"days=0", "numDays"},
		{"simulations=-4", "numSimulations"},
		{"simulations=abc", "simulations"},
		{"seed=1.5", "seed"},
		{"days=366", "numDays"},
		{"simulations=100001", "numSimulations"},
		{"simulations=100000&days=365", "numSimulations"},
		{"simulations=20000&days=251", "numSimulations"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, body := do(t, newApp(&fakeService{}, nil),
				httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL?"+tt.query, nil))
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.field, body["field"])
			assert.Equal(t, float64(400), body["code"])
		})
	}
}

func TestGetStock_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient", &montecarlo.InsufficientDataError{Got: 1, Need: 2}, http.StatusBadRequest},
		{"price", fmt.Errorf("wrapped: %w", &montecarlo.InvalidPriceError{Field: "lastPrice"}), http.StatusBadRequest},
		{"not found", fmt.Errorf("fetch history: %w", yahoo.ErrSymbolNotFound), http.StatusNotFound},
		{"timeout", fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", errors.New("upstream exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, newApp(&fakeService{err: tt.err}, nil),
				httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL", nil))
			assert.Equal(t, tt.status, status)
			assert.Equal(t, float64(tt.status), body["code"])
		})
	}
}

func TestGetStock_CellBudgetBoundary(t *testing.T) {
	svc := &fakeService{}
	status, _ := do(t, newApp(svc, nil),
		httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL?simulations=20000&days=250", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 20000, svc.lastCfg.NumSimulations)
}

func TestGetForecast_Batch(t *testing.T) {
	svc := &fakeService{}
	req := httptest.NewRequest(http.MethodPost, "/v1/forecast",
		strings.NewReader(`{"tickers":["AAPL","MSFT"],"simulations":200,"days":3,"seed":5}`))
	req.Header.Set("Content-Type", "application/json")

	status, body := do(t, newApp(svc, nil), req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"AAPL", "MSFT"}, svc.lastSymbols)
	assert.Equal(t, 200, svc.lastCfg.NumSimulations)
	assert.Equal(t, 3, svc.lastCfg.NumDays)
	require.NotNil(t, svc.lastCfg.Seed)
	assert.Len(t, body["forecasts"], 2)
}

func TestGetForecast_RequestValidation(t *testing.T) {
	many := make([]string, 51)
	for i := range many {
		many[i] = fmt.Sprintf(`"T%d"`, i)
	}

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"tickers":`},
		{"empty", `{"tickers":[]}`},
		{"too many", `{"tickers":[` + strings.Join(many, ",") + `]}`},
		{"days too large", `{"tickers":["AAPL"],"days":1000}`},
		{"forecast too large", `{"tickers":["AAPL"],"simulations":100000,"days":365}`},
		{"batch too large", `{"tickers":[` + strings.Join(many[:50], ",") + `],"simulations":100000,"days":11}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/forecast", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			status, _ := do(t, newApp(&fakeService{}, nil), req)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestGetTickerData(t *testing.T) {
	status, body := do(t, newApp(&fakeService{}, nil), httptest.NewRequest(http.MethodGet, "/v1/tickers/IBM", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 12.5, body["price"])
}

func TestGetTickerData_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("all sources failed for IBM: %w", errors.Join(errors.New("alpha: throttled"), yahoo.ErrSymbolNotFound)), http.StatusNotFound},
		{"timeout", fmt.Errorf("quote: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"no sources", errors.New("no quote sources configured"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, newApp(&fakeService{err: tt.err}, nil), httptest.NewRequest(http.MethodGet, "/v1/tickers/IBM", nil))
			assert.Equal(t, tt.status, status)
			assert.Equal(t, float64(tt.status), body["code"])
		})
	}
}

func TestRefreshCache(t *testing.T) {
	svc := &fakeService{}
	status, _ := do(t, newApp(svc, nil), httptest.NewRequest(http.MethodPost, "/v1/admin/refresh", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, svc.purged)
}

func TestHealth(t *testing.T) {
	status, body := do(t, newApp(&fakeService{}, nil), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReady(t *testing.T) {
	status, body := do(t, newApp(&fakeService{}, fakeChecker{"memory": "ok", "redis": "disabled"}),
		httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = do(t, newApp(&fakeService{}, fakeChecker{"redis": "error: dial tcp"}),
		httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestCustomErrorHandler_UnknownRoute(t *testing.T) {
	status, body := do(t, newApp(&fakeService{}, nil), httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Request failed", body["error"])
}
