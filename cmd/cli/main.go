package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"TradeSentinel/internal/analysis"
	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/data"
	"TradeSentinel/internal/logging"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/optimizer"
	"TradeSentinel/internal/recorder"
	"TradeSentinel/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "backtest":
		err = cmdBacktest(os.Args[2:])
	case "optimize":
		err = cmdOptimize(os.Args[2:])
	case "fetch":
		err = cmdFetch(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli backtest --config configs/config.yaml --data data/krw-btc.csv [--trades-out trades.csv] [--equity-out equity.csv]")
	fmt.Println("  cli optimize --config configs/config.yaml --data data/krw-btc.parquet [--top 10] [--workers 8]")
	fmt.Println("  cli fetch --config configs/config.yaml --out data/krw-btc.parquet [--count 5000]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - bar files may be .csv, .json or .parquet")
	fmt.Println("  - --notify sends the summary to the configured Telegram chat")
}

type common struct {
	cfg    *config.Config
	logger *zap.Logger
	rec    recorder.Recorder
	sender notifier.Sender
}

func setup(cfgPath string, record, notify bool) (*common, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, "console")
	if err != nil {
		return nil, err
	}
	c := &common{cfg: cfg, logger: logger, rec: recorder.NewNoopRecorder(), sender: notifier.Noop{}}
	if record && cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			c.rec = sr
		}
	}
	if notify {
		if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
			return nil, errors.New("--notify needs telegram.bot_token and telegram.chat_id")
		}
		c.sender = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
	}
	return c, nil
}

func (c *common) close() {
	c.rec.Close()
	_ = c.logger.Sync()
}

func (c *common) loadBars(path string) ([]model.Bar, error) {
	if path == "" {
		path = c.cfg.Data.Path
	}
	if path == "" {
		return nil, errors.New("--data or data.path is required")
	}
	bars, err := data.Load(path)
	if err != nil {
		return nil, err
	}
	c.logger.Info("bars loaded",
		zap.String("path", path),
		zap.Int("bars", len(bars)),
		zap.Time("from", bars[0].Time),
		zap.Time("to", bars[len(bars)-1].Time),
	)
	return bars, nil
}

func cmdBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", "configs/config.yaml", "Path to YAML config")
	dataPath := fs.String("data", "", "Bar file (defaults to data.path)")
	tradesOut := fs.String("trades-out", "", "Optional: write trades CSV")
	equityOut := fs.String("equity-out", "", "Optional: write equity curve CSV")
	record := fs.Bool("record", true, "Store the run in the SQLite history")
	notify := fs.Bool("notify", false, "Send the summary to Telegram")
	_ = fs.Parse(args)

	c, err := setup(*cfgPath, *record, *notify)
	if err != nil {
		return err
	}
	defer c.close()

	bars, err := c.loadBars(*dataPath)
	if err != nil {
		return err
	}
	policy, params := c.cfg.Policy(), c.cfg.Params
	scorer, err := strategy.New(policy, params)
	if err != nil {
		return err
	}
	engine := backtest.New(c.cfg.EngineConfig(), backtest.WithLogger(c.logger))
	result, err := engine.Run(bars, params, scorer)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	summary := analysis.Summarize(result, analysis.ReturnBasis(c.cfg.Backtest.ReturnBasis))

	printSummary(policy, params, summary)
	if result.OpenPosition != nil {
		fmt.Printf("open position at end: entry %.2f, qty %.8f (marked to market)\n",
			result.OpenPosition.EntryPrice, result.OpenPosition.Quantity)
	}

	if *tradesOut != "" {
		if err := backtest.WriteTradesCSV(*tradesOut, result.Trades); err != nil {
			return err
		}
		fmt.Printf("wrote %d trades to %s\n", len(result.Trades), *tradesOut)
	}
	if *equityOut != "" {
		if err := backtest.WriteEquityCSV(*equityOut, result.EquityCurve); err != nil {
			return err
		}
		fmt.Printf("wrote equity curve to %s\n", *equityOut)
	}

	id := uuid.NewString()
	if err := c.rec.RecordRun(&recorder.RunRecord{
		ID:        id,
		Source:    "cli",
		Symbol:    c.cfg.Data.Symbol,
		Policy:    policy,
		Params:    params,
		Summary:   summary,
		Trades:    result.Trades,
		Bars:      len(bars),
		From:      bars[0].Time,
		To:        bars[len(bars)-1].Time,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		c.logger.Error("record run", zap.Error(err))
	}

	if err := c.sender.Send(context.Background(), notifier.FormatSummary(c.cfg.Data.Symbol, policy, params, summary)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func printSummary(policy model.Policy, params model.ParameterSet, s model.PerformanceSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "policy\t%s\n", policy)
	fmt.Fprintf(w, "params\t%s\n", params)
	fmt.Fprintf(w, "trades\t%d\n", s.TotalTrades)
	fmt.Fprintf(w, "win rate\t%.2f%%\n", s.WinRate)
	fmt.Fprintf(w, "total return\t%.2f%%\n", s.TotalReturn)
	fmt.Fprintf(w, "max drawdown\t%.2f%%\n", s.MaxDrawdown)
	fmt.Fprintf(w, "final equity\t%.2f\n", s.FinalEquity)
	w.Flush()
}

func cmdOptimize(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	cfgPath := fs.String("config", "configs/config.yaml", "Path to YAML config")
	dataPath := fs.String("data", "", "Bar file (defaults to data.path)")
	top := fs.Int("top", 0, "Number of ranked results to print (0 = optimizer.top_n)")
	workers := fs.Int("workers", 0, "Worker goroutines (0 = optimizer.workers or NumCPU)")
	record := fs.Bool("record", true, "Store the search in the SQLite history")
	notify := fs.Bool("notify", false, "Send the report to Telegram")
	_ = fs.Parse(args)

	c, err := setup(*cfgPath, *record, *notify)
	if err != nil {
		return err
	}
	defer c.close()

	bars, err := c.loadBars(*dataPath)
	if err != nil {
		return err
	}
	settings := c.cfg.OptimizerSettings()
	if *top > 0 {
		settings.TopN = *top
	}
	if *workers > 0 {
		settings.Workers = *workers
	}
	grid := c.cfg.SearchGrid()
	size, err := grid.Size()
	if err != nil {
		return err
	}
	c.logger.Info("grid search", zap.Int("combinations", size), zap.Strings("axes", grid.Axes()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opt := optimizer.New(backtest.New(c.cfg.EngineConfig()), settings, optimizer.WithLogger(c.logger))
	rep, err := opt.Run(ctx, bars, grid)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "rank\tindex\tfinal equity\treturn %\tmdd %\ttrades\tparams")
	for i, r := range rep.Top {
		fmt.Fprintf(w, "%d\t%d\t%.2f\t%.2f\t%.2f\t%d\t%s\n",
			i+1, r.Index, r.Summary.FinalEquity, r.Summary.TotalReturn, r.Summary.MaxDrawdown, r.Summary.TotalTrades, r.Params)
	}
	w.Flush()
	fmt.Printf("\n%d combinations: %d evaluated, %d skipped, %d failed in %s\n",
		rep.Total, rep.Evaluated, rep.Skipped, len(rep.Failures), rep.Elapsed.Round(time.Millisecond))
	for _, f := range rep.Failures {
		fmt.Printf("  failed #%d: %s\n", f.Index, f.Err)
	}

	if err := c.rec.RecordGridSearch(&recorder.GridSearchRecord{
		ID:          rep.ID,
		Symbol:      c.cfg.Data.Symbol,
		Policy:      rep.Policy,
		Total:       rep.Total,
		Evaluated:   rep.Evaluated,
		Skipped:     rep.Skipped,
		Failed:      len(rep.Failures),
		BestIndex:   rep.Best.Index,
		BestParams:  rep.Best.Params,
		BestSummary: rep.Best.Summary,
		Elapsed:     rep.Elapsed,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		c.logger.Error("record grid search", zap.Error(err))
	}

	if err := c.sender.Send(ctx, notifier.FormatGridReport(c.cfg.Data.Symbol, rep)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func cmdFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", "configs/config.yaml", "Path to YAML config")
	out := fs.String("out", "", "Output bar file (.csv, .json or .parquet)")
	source := fs.String("source", "", "Data source (defaults to data.source)")
	symbol := fs.String("symbol", "", "Market symbol (defaults to data.symbol)")
	interval := fs.String("interval", "", "Bar interval (defaults to data.interval)")
	count := fs.Int("count", 0, "Number of bars (defaults to data.count)")
	_ = fs.Parse(args)

	c, err := setup(*cfgPath, false, false)
	if err != nil {
		return err
	}
	defer c.close()

	if *out == "" {
		*out = c.cfg.Data.Path
	}
	if *out == "" {
		return errors.New("--out or data.path is required")
	}
	src, sym, ivl, n := c.cfg.Data.Source, c.cfg.Data.Symbol, c.cfg.Data.Interval, c.cfg.Data.Count
	if *source != "" {
		src = *source
	}
	if *symbol != "" {
		sym = *symbol
	}
	if *interval != "" {
		ivl = *interval
	}
	if *count > 0 {
		n = *count
	}

	fetcher, err := collector.New(src, c.cfg.Proxy)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	series, err := collector.NewCollector(fetcher, sym, ivl, n, c.logger).Collect(ctx)
	if err != nil {
		return err
	}
	if err := data.Save(*out, *series); err != nil {
		return err
	}
	fmt.Printf("wrote %d %s %s bars from %s to %s\n", len(series.Bars), sym, ivl, fetcher.Name(), *out)
	return nil
}
