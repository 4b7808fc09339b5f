package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/optimizer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Policy() != model.PolicyWeighted {
		t.Errorf("expected weighted policy, got %s", cfg.Policy())
	}
	if got, want := cfg.EngineConfig(), backtest.DefaultConfig(model.PolicyWeighted); got != want {
		t.Errorf("engine config %+v, want %+v", got, want)
	}
	if !reflect.DeepEqual(cfg.Grid, optimizer.DefaultGrid(model.PolicyWeighted)) {
		t.Errorf("unexpected default grid %+v", cfg.Grid)
	}
	if cfg.Live.Cron != "0 */5 * * * *" || cfg.Live.Window != 200 {
		t.Errorf("unexpected live defaults %+v", cfg.Live)
	}
}

func TestLoad_RulePolicyDefaults(t *testing.T) {
	path := writeConfig(t, `
backtest:
  policy: rule
params:
  stop_loss: 0.05
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	ec := cfg.EngineConfig()
	if ec.FeeRate != 0.0005 || ec.RiskMode != "percent" || ec.Indicators.Seed != "first" {
		t.Errorf("rule defaults not applied: %+v", ec)
	}
	if cfg.Backtest.ReturnBasis != "equity" {
		t.Errorf("expected equity basis, got %s", cfg.Backtest.ReturnBasis)
	}
	// Fields the file sets override, the rest keep the rule reference values.
	if cfg.Params.StopLoss != 0.05 || cfg.Params.TakeProfit != 0.2 || cfg.Params.Periods.EMAShort != 15 {
		t.Errorf("unexpected params %+v", cfg.Params)
	}
}

func TestLoad_ExplicitZeroFeeIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backtest:\n  fee_rate: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backtest.FeeRate != 0 {
		t.Errorf("expected fee 0, got %v", cfg.Backtest.FeeRate)
	}
}

func TestLoad_GridReplacesDefaultAxes(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
params:
  periods:
    rsi: 21
grid:
  ema_short: [5, 8]
  stop_loss: [1.0]
`))
	if err != nil {
		t.Fatal(err)
	}
	g := cfg.SearchGrid()
	if got := g.Axes(); !reflect.DeepEqual(got, []string{"ema_short", "stop_loss"}) {
		t.Errorf("unexpected axes %v", got)
	}
	if g.Base.Periods.RSI != 21 {
		t.Errorf("grid base should follow params, got rsi %d", g.Base.Periods.RSI)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATA_PATH", "bars.parquet")

	cfg, err := Load(writeConfig(t, "telegram:\n  bot_token: fromfile\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.BotToken != "tok" || cfg.Telegram.ChatID != "42" {
		t.Errorf("telegram not overridden: %+v", cfg.Telegram)
	}
	if cfg.Database.SQLitePath != "/tmp/x.db" || cfg.Server.Port != 9090 {
		t.Errorf("unexpected overrides %s %d", cfg.Database.SQLitePath, cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Data.Path != "bars.parquet" {
		t.Errorf("unexpected overrides %s %s", cfg.Logging.Level, cfg.Data.Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(writeConfig(t, "backtest:\n  policy: martingale\n")); err == nil {
		t.Error("expected unknown policy error")
	}
	if _, err := Load(writeConfig(t, "backtest: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"weights", func(c *Config) { c.Params.Weights.EMA = 0.9 }, "weights"},
		{"fee", func(c *Config) { c.Backtest.FeeRate = 1 }, "fee rate"},
		{"risk mode", func(c *Config) { c.Backtest.RiskMode = "trailing" }, "risk mode"},
		{"seed", func(c *Config) { c.Backtest.EMASeed = "zero" }, "ema_seed"},
		{"basis", func(c *Config) { c.Backtest.ReturnBasis = "log" }, "return_basis"},
		{"cash", func(c *Config) { c.Backtest.InitialCash = 0 }, "initial_cash"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(model.PolicyWeighted)
			cfg.Grid = optimizer.DefaultGrid(model.PolicyWeighted)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateLive(t *testing.T) {
	cfg := defaults(model.PolicyRule)
	if err := cfg.ValidateLive(); err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("expected bot_token error, got %v", err)
	}
	cfg.Telegram.BotToken, cfg.Telegram.ChatID = "t", "1"
	if err := cfg.ValidateLive(); err != nil {
		t.Fatal(err)
	}
	cfg.Live.AdvisorMode = "confirm"
	if err := cfg.ValidateLive(); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
	cfg.Advisor.APIKey = "k"
	cfg.Live.Window = 10
	if err := cfg.ValidateLive(); err == nil || !strings.Contains(err.Error(), "live.window") {
		t.Fatalf("expected window error, got %v", err)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Policy() != model.PolicyRule || cfg.Live.AdvisorMode != "off" {
		t.Errorf("unexpected policy %s / advisor mode %q", cfg.Policy(), cfg.Live.AdvisorMode)
	}
	if n, _ := cfg.SearchGrid().Size(); n != 64 {
		t.Errorf("expected 64 combinations, got %d", n)
	}
}
