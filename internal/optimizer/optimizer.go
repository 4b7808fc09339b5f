package optimizer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"TradeSentinel/internal/analysis"
	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/strategy"
)

var (
	// ErrNoFeasibleParameters is returned when every combination of the grid
	// fails the feasibility predicate.
	ErrNoFeasibleParameters = errors.New("no feasible parameter combination")
	// ErrNoSuccessfulRuns is returned when combinations were feasible but
	// every backtest failed.
	ErrNoSuccessfulRuns = errors.New("every feasible run failed")
)

// Feasible decides whether a combination is evaluated at all.
type Feasible func(model.ParameterSet) bool

// WeightsFeasible admits combinations whose factor weights sum to one.
func WeightsFeasible(ps model.ParameterSet) bool {
	return ps.Weights.SumsToOne(model.WeightTolerance)
}

// AlwaysFeasible admits every combination.
func AlwaysFeasible(model.ParameterSet) bool { return true }

// FeasibleFor returns the predicate used with a policy.
func FeasibleFor(policy model.Policy) Feasible {
	if policy == model.PolicyWeighted {
		return WeightsFeasible
	}
	return AlwaysFeasible
}

// ScorerFactory builds the scorer for one combination.
type ScorerFactory func(model.ParameterSet) (strategy.Scorer, error)

// Settings control one optimizer.
type Settings struct {
	Policy  model.Policy         `json:"policy" yaml:"policy"`
	Workers int                  `json:"workers" yaml:"workers"`
	Basis   analysis.ReturnBasis `json:"return_basis" yaml:"return_basis"`
	TopN    int                  `json:"top_n" yaml:"top_n"`
}

// RunFailure records a combination whose backtest returned an error.
type RunFailure struct {
	Index  int                `json:"index"`
	Params model.ParameterSet `json:"params"`
	Err    string             `json:"error"`
}

// Report is the outcome of a grid search.
type Report struct {
	ID        string                   `json:"id"`
	Policy    model.Policy             `json:"policy"`
	Best      model.GridSearchResult   `json:"best"`
	Top       []model.GridSearchResult `json:"top"`
	Total     int                      `json:"total"`
	Evaluated int                      `json:"evaluated"`
	Skipped   int                      `json:"skipped"`
	Failures  []RunFailure             `json:"failures,omitempty"`
	Elapsed   time.Duration            `json:"elapsed"`
}

// Option configures an Optimizer.
type Option func(*Optimizer)

func WithLogger(l *zap.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFeasible overrides the policy's feasibility predicate.
func WithFeasible(f Feasible) Option {
	return func(o *Optimizer) {
		if f != nil {
			o.feasible = f
		}
	}
}

// WithScorerFactory overrides how scorers are built per combination.
func WithScorerFactory(f ScorerFactory) Option {
	return func(o *Optimizer) {
		if f != nil {
			o.newScorer = f
		}
	}
}

// Optimizer runs a backtest for every feasible grid combination on a pool of
// workers and keeps the best result.
type Optimizer struct {
	engine    *backtest.Engine
	settings  Settings
	feasible  Feasible
	newScorer ScorerFactory
	logger    *zap.Logger
}

func New(engine *backtest.Engine, s Settings, opts ...Option) *Optimizer {
	if s.Workers <= 0 {
		s.Workers = runtime.NumCPU()
	}
	if s.Basis == "" {
		s.Basis = analysis.DefaultReturnBasis(s.Policy)
	}
	if s.TopN <= 0 {
		s.TopN = 5
	}
	policy := s.Policy
	o := &Optimizer{
		engine:   engine,
		settings: s,
		feasible: FeasibleFor(policy),
		newScorer: func(ps model.ParameterSet) (strategy.Scorer, error) {
			return strategy.New(policy, ps)
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Optimizer) Settings() Settings { return o.settings }

type job struct {
	index  int
	params model.ParameterSet
}

type outcome struct {
	index  int
	params model.ParameterSet
	result *model.BacktestResult
	err    error
}

// Run evaluates the grid over bars. The winner has the highest final equity;
// ties go to the lowest enumeration index, whatever the worker count.
// Cancellation is observed between runs.
func (o *Optimizer) Run(ctx context.Context, bars []model.Bar, grid Grid) (*Report, error) {
	started := time.Now()
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("validate bars: %w", err)
	}
	total, err := grid.Size()
	if err != nil {
		return nil, err
	}

	cache := newFrameCache(bars, o.engine.Config().Indicators)
	red := newReducer(o.settings.TopN)

	jobs := make(chan job)
	results := make(chan outcome)
	g, gctx := errgroup.WithContext(ctx)

	var skipped, feasible int
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < total; i++ {
			ps := grid.At(i)
			if !o.feasible(ps) {
				skipped++
				continue
			}
			feasible++
			select {
			case jobs <- job{index: i, params: ps}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for w := 0; w < o.settings.Workers; w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				results <- o.evaluate(j, bars, cache)
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		if out.err != nil {
			o.logger.Warn("grid run failed",
				zap.Int("index", out.index),
				zap.String("params", out.params.String()),
				zap.Error(out.err),
			)
			red.fail(out)
			continue
		}
		red.add(model.GridSearchResult{
			Index:   out.index,
			Params:  out.params,
			Result:  out.result,
			Summary: analysis.Summarize(out.result, o.settings.Basis),
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grid search interrupted after %d runs: %w", red.evaluated+len(red.failures), err)
	}
	if feasible == 0 {
		return nil, fmt.Errorf("%w: %d combinations skipped", ErrNoFeasibleParameters, skipped)
	}
	if red.evaluated == 0 {
		sort.Slice(red.failures, func(i, j int) bool { return red.failures[i].Index < red.failures[j].Index })
		return nil, fmt.Errorf("%w: first failure at index %d: %s", ErrNoSuccessfulRuns, red.failures[0].Index, red.failures[0].Err)
	}

	rep := red.report()
	rep.ID = uuid.NewString()
	rep.Policy = o.settings.Policy
	rep.Total = total
	rep.Skipped = skipped
	rep.Elapsed = time.Since(started)

	o.logger.Info("grid search finished",
		zap.String("id", rep.ID),
		zap.Int("total", rep.Total),
		zap.Int("evaluated", rep.Evaluated),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", len(rep.Failures)),
		zap.Int("best_index", rep.Best.Index),
		zap.Float64("best_equity", rep.Best.Summary.FinalEquity),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}

func (o *Optimizer) evaluate(j job, bars []model.Bar, cache *frameCache) (out outcome) {
	out.index = j.index
	out.params = j.params
	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = fmt.Errorf("panic: %v", r)
		}
	}()

	frames, err := cache.get(j.params.Periods)
	if err != nil {
		out.err = fmt.Errorf("compute indicators: %w", err)
		return out
	}
	scorer, err := o.newScorer(j.params)
	if err != nil {
		out.err = fmt.Errorf("build scorer: %w", err)
		return out
	}
	out.result, out.err = o.engine.RunFrames(bars, frames, j.params, scorer)
	return out
}

// reducer folds results in arrival order. Its outcome does not depend on
// that order.
type reducer struct {
	topN      int
	best      model.GridSearchResult
	top       []model.GridSearchResult
	evaluated int
	failures  []RunFailure
}

func newReducer(topN int) *reducer {
	return &reducer{topN: topN}
}

func (r *reducer) add(res model.GridSearchResult) {
	if r.evaluated == 0 || analysis.Better(res, r.best) {
		r.best = res
	}
	r.evaluated++

	light := res
	light.Result = nil
	r.top = append(r.top, light)
	analysis.Rank(r.top)
	if len(r.top) > r.topN {
		r.top = r.top[:r.topN]
	}
}

func (r *reducer) fail(out outcome) {
	r.failures = append(r.failures, RunFailure{Index: out.index, Params: out.params, Err: out.err.Error()})
}

func (r *reducer) report() *Report {
	sort.Slice(r.failures, func(i, j int) bool { return r.failures[i].Index < r.failures[j].Index })
	return &Report{
		Best:      r.best,
		Top:       r.top,
		Evaluated: r.evaluated,
		Failures:  r.failures,
	}
}

// frameCache computes indicator frames once per distinct period set.
type frameCache struct {
	bars []model.Bar
	opts calculator.Options

	mu      sync.Mutex
	entries map[model.Periods]*cacheEntry
}

type cacheEntry struct {
	once   sync.Once
	frames []model.IndicatorFrame
	err    error
}

func newFrameCache(bars []model.Bar, opts calculator.Options) *frameCache {
	return &frameCache{bars: bars, opts: opts, entries: make(map[model.Periods]*cacheEntry)}
}

func (c *frameCache) get(p model.Periods) ([]model.IndicatorFrame, error) {
	c.mu.Lock()
	e, ok := c.entries[p]
	if !ok {
		e = &cacheEntry{}
		c.entries[p] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.frames, e.err = calculator.Compute(c.bars, p, c.opts)
	})
	return e.frames, e.err
}
