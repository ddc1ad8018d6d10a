// Package config loads environment-driven settings, optionally overridden by
// a YAML strategy file. Everything is validated once at startup; the bot
// never re-reads configuration while running.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"momentum-core/internal/risk"
	"momentum-core/internal/signal"
)

// Config holds all settings for one bot instance.
type Config struct {
	Port string

	Symbol         string
	KlineInterval  string
	RSIPeriod      int
	BinanceTestnet bool
	UseMockFeed    bool

	Strategy signal.Config
	Risk     risk.Config

	// StopLossPct feeds dynamic sizing when > 0 (percent below entry).
	StopLossPct float64

	DBPath string

	// JWTSecret signs operator tokens; AdminKey is exchanged for one at
	// /api/auth/login. Empty AdminKey disables the control endpoints.
	JWTSecret string
	AdminKey  string
}

// strategyFile is the optional YAML override for strategy parameters,
// pointed at by STRATEGY_CONFIG.
type strategyFile struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`

	RSIPeriod             int     `yaml:"rsi_period"`
	RSIOversold           float64 `yaml:"rsi_oversold"`
	RSIOverbought         float64 `yaml:"rsi_overbought"`
	IntensityBuyThreshold float64 `yaml:"intensity_buy_threshold"`
	CounterBuyThreshold   int     `yaml:"counter_buy_threshold"`
	BounceThreshold       float64 `yaml:"bounce_threshold"`
	MinProfitPct          float64 `yaml:"min_profit_pct"`
	BigProfitPct          float64 `yaml:"big_profit_pct"`
	CooldownMinutes       float64 `yaml:"cooldown_minutes"`
}

// Load reads the environment (optionally via .env) into a validated Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	strat := signal.DefaultConfig()
	strat.Oversold = getEnvFloat("RSI_OVERSOLD", strat.Oversold)
	strat.Overbought = getEnvFloat("RSI_OVERBOUGHT", strat.Overbought)
	strat.IntensityBuyThreshold = getEnvFloat("INTENSITY_BUY_THRESHOLD", strat.IntensityBuyThreshold)
	strat.CounterBuyThreshold = getEnvInt("COUNTER_BUY_THRESHOLD", strat.CounterBuyThreshold)
	strat.BounceThreshold = getEnvFloat("BOUNCE_THRESHOLD", strat.BounceThreshold)
	strat.MinProfitPct = getEnvFloat("MIN_PROFIT_PCT", strat.MinProfitPct)
	strat.BigProfitPct = getEnvFloat("BIG_PROFIT_PCT", strat.BigProfitPct)
	strat.Cooldown = time.Duration(getEnvFloat("COOLDOWN_MINUTES", 5) * float64(time.Minute))

	riskCfg := risk.DefaultConfig(getEnvFloat("INITIAL_BALANCE", 1000))
	riskCfg.DynamicSizing = getEnv("DYNAMIC_POSITION_SIZING", "false") == "true"
	riskCfg.RiskPerTradePct = getEnvFloat("RISK_PER_TRADE_PCT", riskCfg.RiskPerTradePct)
	riskCfg.MaxDrawdownPct = getEnvFloat("MAX_DRAWDOWN_PCT", riskCfg.MaxDrawdownPct)
	riskCfg.Leverage = getEnvInt("LEVERAGE", riskCfg.Leverage)
	riskCfg.MarginType = risk.MarginType(getEnv("MARGIN_TYPE", string(riskCfg.MarginType)))
	riskCfg.Mode = risk.TradingMode(getEnv("TRADING_MODE", string(riskCfg.Mode)))

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Symbol:         getEnv("SYMBOL", "ETHUSDT"),
		KlineInterval:  getEnv("KLINE_INTERVAL", "1m"),
		RSIPeriod:      getEnvInt("RSI_PERIOD", 14),
		BinanceTestnet: getEnv("BINANCE_TESTNET", "false") == "true",
		UseMockFeed:    getEnv("USE_MOCK_FEED", "true") == "true",
		Strategy:       strat,
		Risk:           riskCfg,
		StopLossPct:    getEnvFloat("STOP_LOSS_PCT", 0),
		DBPath:         getEnv("DB_PATH", "./data/momentum.db"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret"),
		AdminKey:       os.Getenv("ADMIN_KEY"),
	}

	if path := os.Getenv("STRATEGY_CONFIG"); path != "" {
		if err := cfg.applyYAML(path); err != nil {
			return nil, fmt.Errorf("strategy config %s: %w", path, err)
		}
	}

	if err := cfg.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("strategy config: %w", err)
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	if cfg.RSIPeriod < 2 {
		return nil, fmt.Errorf("rsi period must be at least 2, got %d", cfg.RSIPeriod)
	}
	if cfg.StopLossPct < 0 || cfg.StopLossPct >= 100 {
		return nil, fmt.Errorf("stop loss pct out of range: %.2f", cfg.StopLossPct)
	}
	return cfg, nil
}

// applyYAML overlays non-zero values from the YAML file onto the config.
// YAML wins over the environment for strategy parameters.
func (c *Config) applyYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f strategyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	if f.Symbol != "" {
		c.Symbol = f.Symbol
	}
	if f.Interval != "" {
		c.KlineInterval = f.Interval
	}
	if f.RSIPeriod > 0 {
		c.RSIPeriod = f.RSIPeriod
	}
	if f.RSIOversold > 0 {
		c.Strategy.Oversold = f.RSIOversold
	}
	if f.RSIOverbought > 0 {
		c.Strategy.Overbought = f.RSIOverbought
	}
	if f.IntensityBuyThreshold > 0 {
		c.Strategy.IntensityBuyThreshold = f.IntensityBuyThreshold
	}
	if f.CounterBuyThreshold > 0 {
		c.Strategy.CounterBuyThreshold = f.CounterBuyThreshold
	}
	if f.BounceThreshold > 0 {
		c.Strategy.BounceThreshold = f.BounceThreshold
	}
	if f.MinProfitPct > 0 {
		c.Strategy.MinProfitPct = f.MinProfitPct
	}
	if f.BigProfitPct > 0 {
		c.Strategy.BigProfitPct = f.BigProfitPct
	}
	if f.CooldownMinutes > 0 {
		c.Strategy.Cooldown = time.Duration(f.CooldownMinutes * float64(time.Minute))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
