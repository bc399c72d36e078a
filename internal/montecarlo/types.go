package montecarlo

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultNumSimulations = 1000
	DefaultNumDays        = 10

	// Percentiles bounding the 95% confidence band.
	LowerPercentile = 2.5
	UpperPercentile = 97.5
)

// PricePoint is one daily close.
type PricePoint struct {
	Date  time.Time
	Close decimal.Decimal
}

// HistoricalSeries is an ascending, one-entry-per-trading-day close series.
type HistoricalSeries []PricePoint

// Closes returns the closes as float64 in series order.
func (s HistoricalSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close.InexactFloat64()
	}
	return closes
}

// Last returns the most recent point.
func (s HistoricalSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// ReturnStatistics describes the single-period return distribution.
type ReturnStatistics struct {
	MeanReturn float64
	Volatility float64
}

// Validate rejects distributions the simulator cannot sample from.
func (r ReturnStatistics) Validate() error {
	if !isFinite(r.MeanReturn) {
		return &InvalidConfigurationError{Field: "meanReturn", Value: r.MeanReturn, Constraint: "must be finite"}
	}
	if !isFinite(r.Volatility) || r.Volatility < 0 {
		return &InvalidConfigurationError{Field: "volatility", Value: r.Volatility, Constraint: "must be finite and >= 0"}
	}
	return nil
}

// SimulationConfig controls one forecast run. A nil Seed makes the run
// non-deterministic.
type SimulationConfig struct {
	NumSimulations int
	NumDays        int
	Seed           *int64
}

// DefaultSimulationConfig returns 1000 simulations over a 10 day horizon.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		NumSimulations: DefaultNumSimulations,
		NumDays:        DefaultNumDays,
	}
}

// WithSeed returns a copy of c seeded with seed.
func (c SimulationConfig) WithSeed(seed int64) SimulationConfig {
	c.Seed = &seed
	return c
}

// Validate checks the simulation and horizon counts.
func (c SimulationConfig) Validate() error {
	if c.NumSimulations <= 0 {
		return &InvalidConfigurationError{Field: "numSimulations", Value: c.NumSimulations, Constraint: "must be > 0"}
	}
	if c.NumDays <= 0 {
		return &InvalidConfigurationError{Field: "numDays", Value: c.NumDays, Constraint: "must be > 0"}
	}
	return nil
}

// ForecastPoint is the reduced forecast for one future day.
type ForecastPoint struct {
	DayOffset      int
	PredictedClose float64
	Lower          float64
	Upper          float64
}

// ForecastSeries holds one ForecastPoint per horizon day, ascending.
type ForecastSeries []ForecastPoint
