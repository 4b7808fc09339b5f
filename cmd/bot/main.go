package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"TradeSentinel/internal/advisor"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/executor"
	"TradeSentinel/internal/logging"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/recorder"
	"TradeSentinel/internal/scheduler"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("TradeSentinel bot starting", zap.String("config", cfgPath))

	if err := cfg.ValidateLive(); err != nil {
		logger.Fatal("config validation", zap.Error(err))
	}

	// Init fetcher
	fetcher, err := collector.New(cfg.Data.Source, cfg.Proxy)
	if err != nil {
		logger.Fatal("init fetcher", zap.Error(err))
	}
	logger.Info("data source", zap.String("name", fetcher.Name()), zap.String("symbol", cfg.Data.Symbol))
	col := collector.NewCollector(fetcher, cfg.Data.Symbol, cfg.Data.Interval, cfg.Live.Window, logger)

	// Init advisor
	mode, _ := advisor.ParseMode(cfg.Live.AdvisorMode)
	var adv advisor.Advisor = advisor.Noop{}
	if mode != advisor.ModeOff {
		adv = advisor.NewHTTPAdvisor(cfg.Advisor.BaseURL, cfg.Advisor.APIKey, cfg.Advisor.Model)
		logger.Info("advisor enabled", zap.String("mode", string(mode)), zap.String("advisor", adv.Name()))
	}

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Orders are filled on paper against the persisted cash.
	snap, err := position.LoadSnapshot(cfg.Live.StateFile)
	if err != nil {
		logger.Fatal("load position", zap.Error(err))
	}
	cash := cfg.Backtest.InitialCash
	if !snap.Fresh() {
		cash = snap.Cash
	}
	exec := executor.NewPaperExecutor(cash, cfg.Backtest.FeeRate, logger)
	if snap.Position != nil {
		exec.Hold(snap.Position.Quantity)
		logger.Info("resuming open position",
			zap.Float64("entry", snap.Position.EntryPrice),
			zap.Float64("stop", snap.Position.StopPrice),
			zap.Float64("take", snap.Position.TakePrice),
		)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := scheduler.Settings{
		Policy:      cfg.Policy(),
		Params:      cfg.Params,
		Indicators:  cfg.EngineConfig().Indicators,
		Risk:        cfg.RiskConfig(),
		InitialCash: cfg.Backtest.InitialCash,
		StateFile:   cfg.Live.StateFile,
		AdvisorMode: mode,
	}
	sched, err := scheduler.NewScheduler(ctx, settings, col, adv, exec, tn, rec, logger)
	if err != nil {
		logger.Fatal("init scheduler", zap.Error(err))
	}
	if err := sched.RegisterAll(cfg.Live.Cron, cfg.Live.ReportCron); err != nil {
		logger.Fatal("register cron tasks", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, sched.HandleCommand)
	logger.Info("telegram polling started")

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, executing a tick now")
		go sched.RunNow()
	}

	logger.Info("TradeSentinel bot is running, press Ctrl+C to stop")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping")
	cancel()
}
