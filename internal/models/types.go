package models

import "time"

// ForecastRequest represents the incoming batch forecast request
type ForecastRequest struct {
	Tickers     []string `json:"tickers"`
	Simulations *int     `json:"simulations,omitempty"`
	Days        *int     `json:"days,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
}

// StockInfo is the quote summary returned alongside a forecast
type StockInfo struct {
	ShortName     string  `json:"shortName"`
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"currentPrice"`
	PreviousClose float64 `json:"previousClose"`
	Volume        int64   `json:"volume"`
}

// HistoryPoint is one historical daily close
type HistoryPoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// FuturePrediction is the forecast for one calendar day
type FuturePrediction struct {
	Date           string  `json:"date"`
	PredictedClose float64 `json:"predictedClose"`
	Lower          float64 `json:"lower"`
	Upper          float64 `json:"upper"`
}

// ReturnSummary describes the return distribution the forecast was drawn from
type ReturnSummary struct {
	MeanReturn  float64 `json:"meanReturn"`
	Volatility  float64 `json:"volatility"`
	Simulations int     `json:"simulations"`
	Days        int     `json:"days"`
	Seeded      bool    `json:"seeded"`
}

// StockForecast represents the forecast result for a single symbol
type StockForecast struct {
	Info              StockInfo          `json:"info"`
	History           []HistoryPoint     `json:"history"`
	FuturePredictions []FuturePrediction `json:"future_predictions"`
	Statistics        ReturnSummary      `json:"statistics"`
	GeneratedAt       time.Time          `json:"generatedAt"`
	CacheHit          bool               `json:"cacheHit"`
}

// ForecastResponse represents the batch forecast result
type ForecastResponse struct {
	Forecasts   []StockForecast   `json:"forecasts"`
	Errors      map[string]string `json:"errors,omitempty"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// TickerData represents market data for a ticker
type TickerData struct {
	Symbol        string    `json:"symbol"`
	ShortName     string    `json:"shortName"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previousClose"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        int64     `json:"volume"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Source        string    `json:"source"` // "alphavantage" or "yahoo"
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    int    `json:"code"`
}
