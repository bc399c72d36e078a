package montecarlo

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// batchSize is the number of trials drawn from one random stream. The
// partition is fixed so seeded output does not depend on the worker count.
const batchSize = 256

// Simulator runs price-path simulations and reduces them to a forecast band.
type Simulator struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	workers int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithWorkers bounds how many batches run in parallel. Values below 1 fall
// back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used for simulation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Simulator) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewSimulator creates a Simulator.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("stock-forecast-api/montecarlo"),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Workers returns the configured parallelism.
func (s *Simulator) Workers() int {
	return s.workers
}

// Simulate draws cfg.NumSimulations price paths of cfg.NumDays steps from
// lastPrice, each step compounding a Normal(MeanReturn, Volatility) return,
// and reduces every day to its mean and 2.5/97.5 percentile band rounded to
// two decimals. Inputs are validated before any path is drawn.
func (s *Simulator) Simulate(ctx context.Context, lastPrice float64, stats ReturnStatistics, cfg SimulationConfig) (ForecastSeries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !isFinite(lastPrice) || lastPrice <= 0 {
		return nil, &InvalidPriceError{Field: "lastPrice", Value: lastPrice}
	}
	if err := stats.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "montecarlo.Simulate", trace.WithAttributes(
		attribute.Int("simulations", cfg.NumSimulations),
		attribute.Int("days", cfg.NumDays),
		attribute.Bool("seeded", cfg.Seed != nil),
	))
	defer span.End()

	start := time.Now()
	seed := masterSeed(cfg.Seed)
	matrix := newSimulationMatrix(cfg.NumDays, cfg.NumSimulations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	batches := (cfg.NumSimulations + batchSize - 1) / batchSize
	for b := 0; b < batches; b++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			first := b * batchSize
			last := min(first+batchSize, cfg.NumSimulations)
			rng := rand.New(rand.NewPCG(seed, uint64(b)))
			matrix.fill(rng, first, last, lastPrice, stats)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	forecast := matrix.reduce()

	s.logger.Debug("simulation complete",
		zap.Int("simulations", cfg.NumSimulations),
		zap.Int("days", cfg.NumDays),
		zap.Int("batches", batches),
		zap.Float64("mean_return", stats.MeanReturn),
		zap.Float64("volatility", stats.Volatility),
		zap.Duration("elapsed", time.Since(start)),
	)

	return forecast, nil
}

// Forecast estimates return statistics from series and simulates forward
// from its last close.
func (s *Simulator) Forecast(ctx context.Context, series HistoricalSeries, cfg SimulationConfig) (ReturnStatistics, ForecastSeries, error) {
	stats, err := Estimate(series)
	if err != nil {
		return ReturnStatistics{}, nil, err
	}
	last, _ := series.Last()

	forecast, err := s.Simulate(ctx, last.Close.InexactFloat64(), stats, cfg)
	if err != nil {
		return ReturnStatistics{}, nil, err
	}
	return stats, forecast, nil
}

func masterSeed(seed *int64) uint64 {
	if seed != nil {
		return uint64(*seed)
	}
	return rand.Uint64()
}

// simulationMatrix stores day-major columns: cols[d][i] is trial i's price
// on day d+1. Each batch writes a disjoint range of trial indices.
type simulationMatrix struct {
	cols [][]float64
}

func newSimulationMatrix(days, trials int) *simulationMatrix {
	backing := make([]float64, days*trials)
	cols := make([][]float64, days)
	for d := range cols {
		cols[d] = backing[d*trials : (d+1)*trials : (d+1)*trials]
	}
	return &simulationMatrix{cols: cols}
}

func (m *simulationMatrix) fill(rng *rand.Rand, first, last int, lastPrice float64, stats ReturnStatistics) {
	for i := first; i < last; i++ {
		price := lastPrice
		for d := range m.cols {
			eps := stats.MeanReturn + stats.Volatility*rng.NormFloat64()
			price *= 1 + eps
			m.cols[d][i] = price
		}
	}
}

// reduce consumes the matrix; columns are sorted in place.
func (m *simulationMatrix) reduce() ForecastSeries {
	forecast := make(ForecastSeries, len(m.cols))
	for d, col := range m.cols {
		mean := shiftedMean(col)
		sort.Float64s(col)
		forecast[d] = ForecastPoint{
			DayOffset:      d + 1,
			PredictedClose: Round2(mean),
			Lower:          Round2(Percentile(col, LowerPercentile)),
			Upper:          Round2(Percentile(col, UpperPercentile)),
		}
	}
	return forecast
}
