package montecarlo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MinSeriesLength is the fewest closes that yield a single return.
const MinSeriesLength = 2

// Returns computes the day-over-day percentage changes of series.
func Returns(series HistoricalSeries) ([]float64, error) {
	if len(series) < MinSeriesLength {
		return nil, &InsufficientDataError{Got: len(series), Need: MinSeriesLength}
	}
	for i, p := range series {
		if !p.Close.IsPositive() {
			return nil, &InvalidPriceError{
				Field: fmt.Sprintf("series[%d].close", i),
				Value: p.Close.InexactFloat64(),
			}
		}
	}

	closes := series.Closes()
	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns[i-1] = (closes[i] - closes[i-1]) / closes[i-1]
	}
	return returns, nil
}

// Estimate returns the sample mean and sample standard deviation (n-1) of
// the series' single-period returns. A single return has zero volatility.
func Estimate(series HistoricalSeries) (ReturnStatistics, error) {
	returns, err := Returns(series)
	if err != nil {
		return ReturnStatistics{}, err
	}

	if len(returns) == 1 {
		return ReturnStatistics{MeanReturn: returns[0]}, nil
	}

	mean, std := stat.MeanStdDev(returns, nil)
	if math.IsNaN(std) || std < 0 {
		std = 0
	}
	return ReturnStatistics{MeanReturn: mean, Volatility: std}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
