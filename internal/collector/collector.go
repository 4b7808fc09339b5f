package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"TradeSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price float64
	Step  time.Duration
	Bars  []model.Bar
	Err   error
	Calls int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, _, _ string, count int) ([]model.Bar, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Bars != nil {
		if len(m.Bars) > count {
			return m.Bars[len(m.Bars)-count:], nil
		}
		return m.Bars, nil
	}
	step := m.Step
	if step <= 0 {
		step = 5 * time.Minute
	}
	return generateMockBars(m.Price, count, step), nil
}

// generateMockBars draws an oscillating series ending at the current step.
func generateMockBars(basePrice float64, count int, step time.Duration) []model.Bar {
	end := time.Now().UTC().Truncate(step)
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + 0.02*math.Sin(float64(i)/6) + 0.005*math.Sin(float64(i)/1.7))
		bars[i] = model.Bar{
			Time:   end.Add(-time.Duration(count-1-i) * step),
			Open:   p * 0.999,
			High:   p * 1.004,
			Low:    p * 0.996,
			Close:  p,
			Volume: 10,
		}
	}
	return bars
}

// Collector fetches a validated window of recent bars for one market.
type Collector struct {
	Fetcher  Fetcher
	Symbol   string
	Interval string
	Count    int
	logger   *zap.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, symbol, interval string, count int, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{Fetcher: fetcher, Symbol: symbol, Interval: interval, Count: count, logger: logger}
}

// Collect fetches the latest window and rejects out-of-order data.
func (c *Collector) Collect(ctx context.Context) (*model.PriceSeries, error) {
	started := time.Now()
	bars, err := c.Fetcher.FetchBars(ctx, c.Symbol, c.Interval, c.Count)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s from %s: %w", c.Symbol, c.Interval, c.Fetcher.Name(), err)
	}
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("%s returned invalid bars: %w", c.Fetcher.Name(), err)
	}
	if len(bars) < c.Count {
		c.logger.Warn("short window",
			zap.String("symbol", c.Symbol),
			zap.Int("want", c.Count),
			zap.Int("got", len(bars)),
		)
	}
	c.logger.Debug("bars collected",
		zap.String("source", c.Fetcher.Name()),
		zap.String("symbol", c.Symbol),
		zap.Int("bars", len(bars)),
		zap.Time("last", bars[len(bars)-1].Time),
		zap.Duration("took", time.Since(started)),
	)
	return &model.PriceSeries{
		Symbol:    c.Symbol,
		Interval:  c.Interval,
		Bars:      bars,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// New returns the fetcher registered under name.
func New(name, proxyURL string) (Fetcher, error) {
	switch name {
	case "upbit", "":
		return NewUpbitFetcher(proxyURL), nil
	case "yahoo":
		return NewYahooFetcher(proxyURL), nil
	case "mock":
		return &MockFetcher{Price: 90_000_000}, nil
	}
	return nil, fmt.Errorf("unknown data source %q", name)
}
