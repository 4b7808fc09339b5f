package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"TradeSentinel/internal/advisor"
	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/executor"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/recorder"
	"TradeSentinel/internal/strategy"
)

// Settings describe the strategy the live runner trades.
type Settings struct {
	Policy      model.Policy
	Params      model.ParameterSet
	Indicators  calculator.Options
	Risk        position.Config
	InitialCash float64
	StateFile   string
	AdvisorMode advisor.Mode
	// Lookback is the bar count of the /status high-low range.
	Lookback int
}

// Scheduler runs the live strategy on a cron schedule. Ticks and commands
// are serialized, so the state file has a single writer.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Scorer    strategy.Scorer
	Advisor   advisor.Advisor
	Executor  executor.Executor
	Notifier  notifier.Sender
	Recorder  recorder.Recorder
	Ctx       context.Context

	settings Settings
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, settings Settings, col *collector.Collector, adv advisor.Advisor,
	exec executor.Executor, sender notifier.Sender, rec recorder.Recorder, logger *zap.Logger) (*Scheduler, error) {
	if err := settings.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("risk settings: %w", err)
	}
	scorer, err := strategy.New(settings.Policy, settings.Params)
	if err != nil {
		return nil, err
	}
	if adv == nil {
		adv = advisor.Noop{}
	}
	if sender == nil {
		sender = notifier.Noop{}
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Lookback <= 0 {
		settings.Lookback = 24
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Scorer:    scorer,
		Advisor:   adv,
		Executor:  exec,
		Notifier:  sender,
		Recorder:  rec,
		Ctx:       ctx,
		settings:  settings,
		logger:    logger,
	}, nil
}

// RegisterAll registers the trading tick and the daily status report.
func (s *Scheduler) RegisterAll(tickCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(tickCron, s.tickTask); err != nil {
		return fmt.Errorf("register tick task: %w", err)
	}
	if reportCron != "" {
		if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
			return fmt.Errorf("register report task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for a running tick.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow executes one tick immediately.
func (s *Scheduler) RunNow() {
	s.tickTask()
}

func (s *Scheduler) tickTask() {
	res, err := s.Tick(s.Ctx)
	if err != nil {
		s.logger.Error("tick failed", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ Tick failed for %s: %v", s.Collector.Symbol, err))
		return
	}
	s.logger.Info("tick",
		zap.String("symbol", s.Collector.Symbol),
		zap.String("action", string(res.Signal.Action)),
		zap.Float64("score", res.Signal.Score),
		zap.Bool("transition", res.Transition != nil),
		zap.String("state", string(res.Snapshot.State)),
	)
}

func (s *Scheduler) reportTask() {
	s.trySend(s.HandleCommand(s.Ctx, "/status"))
}

// TickResult is what one tick observed and did.
type TickResult struct {
	Signal     model.Signal
	Judgment   *advisor.Judgment
	Transition *model.Transition
	Fill       *executor.Fill
	Snapshot   position.Snapshot
}

// Tick fetches the latest window, decides on its last bar and applies at most
// one transition. The transition is persisted only after the executor
// accepted the order.
func (s *Scheduler) Tick(ctx context.Context) (*TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.Collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	bars := series.Bars
	frames, err := calculator.Compute(bars, s.settings.Params.Periods, s.settings.Indicators)
	if err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}
	mgr, err := position.LoadManager(s.settings.Risk, s.settings.StateFile, s.settings.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}

	last := len(bars) - 1
	bar, frame := bars[last], frames[last]
	res := &TickResult{}
	res.Signal = s.Scorer.Decide(strategy.Input{Bar: bar, Frame: frame, Open: mgr.State() == model.StateOpen})

	if s.consultAdvisor(res.Signal) {
		j := advisor.Ask(ctx, s.Advisor, bars, s.logger)
		res.Judgment = &j
		res.Signal = advisor.Apply(s.settings.AdvisorMode, res.Signal, j)
	}

	tr, changed := mgr.Step(bar, frame, res.Signal)
	if changed {
		cost := 0.0
		if p, ok := mgr.Position(); ok {
			cost = p.Cost
		}
		intent := executor.FromTransition(series.Symbol, tr, cost)
		if intent.Side == executor.SideBuy {
			bal, err := s.Executor.Balance(ctx)
			if err != nil {
				return nil, fmt.Errorf("balance: %w", err)
			}
			intent = intent.Fit(bal)
		}
		fill, err := s.Executor.Execute(ctx, intent)
		if err != nil {
			return nil, fmt.Errorf("execute %s %s: %w", intent.Side, series.Symbol, err)
		}
		res.Transition = &tr
		res.Fill = &fill
	}

	snap := mgr.Snapshot()
	if err := position.SaveSnapshot(s.settings.StateFile, &snap); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	res.Snapshot = snap

	if res.Transition != nil {
		s.afterTransition(ctx, series.Symbol, res)
	}
	return res, nil
}

// consultAdvisor reports whether the advisor can change sig. In confirm mode
// only a buy can be vetoed, so other signals skip the call.
func (s *Scheduler) consultAdvisor(sig model.Signal) bool {
	switch s.settings.AdvisorMode {
	case advisor.ModeReplace:
		return true
	case advisor.ModeConfirm:
		return sig.Action == model.ActionBuy
	}
	return false
}

func (s *Scheduler) afterTransition(ctx context.Context, symbol string, res *TickResult) {
	tr := *res.Transition
	advice := ""
	if res.Judgment != nil {
		advice = fmt.Sprintf("%s: %s", res.Judgment.Decision, res.Judgment.Explanation)
	}
	evt := &recorder.LiveEvent{
		Symbol:   symbol,
		Kind:     string(tr.Kind),
		Price:    tr.Price,
		Quantity: tr.Quantity,
		Reason:   string(tr.Reason),
		Advice:   advice,
		OrderID:  res.Fill.OrderID,
		At:       tr.Time,
	}
	if tr.Trade != nil {
		evt.PnLRatio = tr.Trade.PnLRatio
	}
	if err := s.Recorder.RecordLiveEvent(evt); err != nil {
		s.logger.Error("record live event", zap.Error(err))
	}
	s.send(ctx, notifier.FormatTransition(symbol, tr, advice))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch command {
	case "/status":
		text, err := s.status(ctx)
		if err != nil {
			return fmt.Sprintf("❌ status unavailable: %v", err)
		}
		return text
	case "/position":
		snap, err := position.LoadSnapshot(s.settings.StateFile)
		if err != nil {
			return fmt.Sprintf("❌ position unavailable: %v", err)
		}
		return notifier.FormatPosition(*snap, 0)
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) status(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.Collector.Collect(ctx)
	if err != nil {
		return "", err
	}
	bars := series.Bars
	frames, err := calculator.Compute(bars, s.settings.Params.Periods, s.settings.Indicators)
	if err != nil {
		return "", err
	}
	snap, err := position.LoadSnapshot(s.settings.StateFile)
	if err != nil {
		return "", err
	}
	if snap.Fresh() {
		snap.Cash = s.settings.InitialCash
	}

	last := len(bars) - 1
	high, low := calculator.HighLow(bars, s.settings.Lookback)
	view := notifier.StatusView{
		Symbol:   series.Symbol,
		Price:    bars[last].Close,
		High:     high,
		Low:      low,
		Lookback: s.settings.Lookback,
		Snapshot: *snap,
		Frame:    frames[last],
		Signal:   s.Scorer.Decide(strategy.Input{Bar: bars[last], Frame: frames[last], Open: snap.Position != nil}),
	}
	return notifier.FormatStatus(view), nil
}

type retrySender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

func (s *Scheduler) send(ctx context.Context, text string) {
	var err error
	if r, ok := s.Notifier.(retrySender); ok {
		err = r.SendWithRetry(ctx, text, 3)
	} else {
		err = s.Notifier.Send(ctx, text)
	}
	if err != nil {
		s.logger.Error("send notification", zap.Error(err))
	}
}

func (s *Scheduler) trySend(text string) {
	s.send(s.Ctx, text)
}
