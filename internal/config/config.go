package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"TradeSentinel/internal/advisor"
	"TradeSentinel/internal/analysis"
	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/optimizer"
	"TradeSentinel/internal/position"
)

// Config holds all application configuration.
type Config struct {
	Data struct {
		Source   string `yaml:"source"`
		Symbol   string `yaml:"symbol"`
		Interval string `yaml:"interval"`
		Count    int    `yaml:"count"`
		Path     string `yaml:"path"`
	} `yaml:"data"`
	Backtest struct {
		Policy         string  `yaml:"policy"`
		InitialCash    float64 `yaml:"initial_cash"`
		FeeRate        float64 `yaml:"fee_rate"`
		RiskMode       string  `yaml:"risk_mode"`
		DeployFraction float64 `yaml:"deploy_fraction"`
		EMASeed        string  `yaml:"ema_seed"`
		RSIMethod      string  `yaml:"rsi_method"`
		ReturnBasis    string  `yaml:"return_basis"`
	} `yaml:"backtest"`
	Params    model.ParameterSet `yaml:"params"`
	Grid      optimizer.Grid     `yaml:"grid"`
	Optimizer struct {
		Workers int `yaml:"workers"`
		TopN    int `yaml:"top_n"`
	} `yaml:"optimizer"`
	Live struct {
		Cron        string `yaml:"cron"`
		ReportCron  string `yaml:"report_cron"`
		Window      int    `yaml:"window"`
		StateFile   string `yaml:"state_file"`
		AdvisorMode string `yaml:"advisor_mode"`
	} `yaml:"live"`
	Advisor struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"advisor"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		Port           int      `yaml:"port"`
		DataDir        string   `yaml:"data_dir"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Proxy string `yaml:"proxy"`
}

// defaults returns a Config carrying the reference settings of policy.
func defaults(policy model.Policy) *Config {
	cfg := &Config{}
	bt := backtest.DefaultConfig(policy)

	cfg.Data.Source = "upbit"
	cfg.Data.Symbol = "KRW-BTC"
	cfg.Data.Interval = "5m"
	cfg.Data.Count = 2000

	cfg.Backtest.Policy = string(policy)
	cfg.Backtest.InitialCash = bt.InitialCash
	cfg.Backtest.FeeRate = bt.FeeRate
	cfg.Backtest.RiskMode = string(bt.RiskMode)
	cfg.Backtest.DeployFraction = bt.DeployFraction
	cfg.Backtest.EMASeed = string(bt.Indicators.Seed)
	cfg.Backtest.RSIMethod = string(bt.Indicators.RSI)
	cfg.Backtest.ReturnBasis = string(analysis.DefaultReturnBasis(policy))

	cfg.Params = model.DefaultParameterSet(policy)
	cfg.Optimizer.TopN = 5

	cfg.Live.Cron = "0 */5 * * * *"
	cfg.Live.ReportCron = "0 0 9 * * *"
	cfg.Live.Window = 200
	cfg.Live.StateFile = "data/position.json"
	cfg.Live.AdvisorMode = string(advisor.ModeOff)

	cfg.Advisor.BaseURL = "https://api.openai.com"
	cfg.Advisor.Model = "gpt-4o"

	cfg.Database.SQLitePath = "data/trade_sentinel.db"
	cfg.Server.Port = 8080
	cfg.Server.DataDir = "data"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Settings the file leaves out keep the defaults of the configured policy.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// The policy decides every other default, so read it first.
	var head struct {
		Backtest struct {
			Policy string `yaml:"policy"`
		} `yaml:"backtest"`
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &head); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	policy, err := model.ParsePolicy(head.Backtest.Policy)
	if err != nil {
		return nil, fmt.Errorf("parse config: backtest.policy: %w", err)
	}

	cfg := defaults(policy)
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if len(cfg.Grid.Axes()) == 0 {
		cfg.Grid = optimizer.DefaultGrid(policy)
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ADVISOR_API_KEY"); v != "" {
		cfg.Advisor.APIKey = v
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		cfg.Data.Path = v
	}

	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if _, err := model.ParsePolicy(c.Backtest.Policy); err != nil {
		return fmt.Errorf("backtest.policy: %w", err)
	}
	if c.Backtest.InitialCash <= 0 {
		return fmt.Errorf("backtest.initial_cash must be positive")
	}
	if _, err := calculator.ParseSeedMode(c.Backtest.EMASeed); err != nil {
		return fmt.Errorf("backtest.ema_seed: %w", err)
	}
	if _, err := calculator.ParseRSIMethod(c.Backtest.RSIMethod); err != nil {
		return fmt.Errorf("backtest.rsi_method: %w", err)
	}
	if _, err := analysis.ParseReturnBasis(c.Backtest.ReturnBasis); err != nil {
		return fmt.Errorf("backtest.return_basis: %w", err)
	}
	risk := position.Config{
		Mode:           position.RiskMode(c.Backtest.RiskMode),
		StopLoss:       c.Params.StopLoss,
		TakeProfit:     c.Params.TakeProfit,
		FeeRate:        c.Backtest.FeeRate,
		DeployFraction: c.Backtest.DeployFraction,
	}
	if err := risk.Validate(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	if c.Policy() == model.PolicyWeighted && !c.Params.Weights.SumsToOne(model.WeightTolerance) {
		return fmt.Errorf("params.weights must sum to 1, got %v", c.Params.Weights.Sum())
	}
	if _, err := c.Grid.Size(); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if c.Optimizer.Workers < 0 {
		return fmt.Errorf("optimizer.workers must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// ValidateLive additionally checks what the live runner needs.
func (c *Config) ValidateLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if c.Live.Window <= c.Params.Periods.Longest() {
		return fmt.Errorf("live.window (%d) must exceed the longest indicator lookback (%d)",
			c.Live.Window, c.Params.Periods.Longest())
	}
	mode, err := advisor.ParseMode(c.Live.AdvisorMode)
	if err != nil {
		return fmt.Errorf("live.advisor_mode: %w", err)
	}
	if mode != advisor.ModeOff && c.Advisor.APIKey == "" {
		return fmt.Errorf("advisor.api_key is required when live.advisor_mode is %s", mode)
	}
	return nil
}

// Policy returns the configured policy. Call after Validate.
func (c *Config) Policy() model.Policy {
	p, _ := model.ParsePolicy(c.Backtest.Policy)
	return p
}

// EngineConfig converts the backtest section.
func (c *Config) EngineConfig() backtest.Config {
	return backtest.Config{
		InitialCash:    c.Backtest.InitialCash,
		FeeRate:        c.Backtest.FeeRate,
		RiskMode:       position.RiskMode(c.Backtest.RiskMode),
		DeployFraction: c.Backtest.DeployFraction,
		Indicators: calculator.Options{
			Seed: calculator.SeedMode(c.Backtest.EMASeed),
			RSI:  calculator.RSIMethod(c.Backtest.RSIMethod),
		},
	}
}

// RiskConfig converts the settings the live position manager uses.
func (c *Config) RiskConfig() position.Config {
	return position.Config{
		Mode:           position.RiskMode(c.Backtest.RiskMode),
		StopLoss:       c.Params.StopLoss,
		TakeProfit:     c.Params.TakeProfit,
		FeeRate:        c.Backtest.FeeRate,
		DeployFraction: c.Backtest.DeployFraction,
	}
}

// SearchGrid returns the grid around the configured parameters.
func (c *Config) SearchGrid() optimizer.Grid {
	g := c.Grid
	g.Base = c.Params
	return g
}

// OptimizerSettings converts the optimizer section.
func (c *Config) OptimizerSettings() optimizer.Settings {
	return optimizer.Settings{
		Policy:  c.Policy(),
		Workers: c.Optimizer.Workers,
		Basis:   analysis.ReturnBasis(c.Backtest.ReturnBasis),
		TopN:    c.Optimizer.TopN,
	}
}
