// internal/service/config.go
package service

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TradingConfig 交易对与杠杆设置
type TradingConfig struct {
	Symbol           string  `mapstructure:"symbol"`
	Leverage         int     `mapstructure:"leverage"`
	MainInterval     string  `mapstructure:"main_interval"`
	MinTradeInterval float64 `mapstructure:"min_trade_interval"` // 秒
}

// KlineConfig K 线拉取设置
type KlineConfig struct {
	Intervals    []string `mapstructure:"intervals"`
	HistoryLimit int      `mapstructure:"history_limit"`
}

// MACDConfig MACD 指标参数
type MACDConfig struct {
	FastPeriod   int `mapstructure:"fast_period"`
	SlowPeriod   int `mapstructure:"slow_period"`
	SignalPeriod int `mapstructure:"signal_period"`
}

// RSIConfig RSI 指标参数
type RSIConfig struct {
	Period     int     `mapstructure:"period"`
	Overbought float64 `mapstructure:"overbought"`
	Oversold   float64 `mapstructure:"oversold"`
}

// BollingerConfig 布林带参数
type BollingerConfig struct {
	Period int     `mapstructure:"period"`
	StdDev float64 `mapstructure:"std_dev"`
}

// IndicatorsConfig 全部指标参数
type IndicatorsConfig struct {
	MACD      MACDConfig      `mapstructure:"macd"`
	RSI       RSIConfig       `mapstructure:"rsi"`
	Bollinger BollingerConfig `mapstructure:"bollinger"`
}

// RiskConfig 风控参数
type RiskConfig struct {
	RiskPerTrade float64 `mapstructure:"risk_per_trade"` // 单笔风险资金比例
	StopLossPct  float64 `mapstructure:"stop_loss_pct"`  // 止损百分比
	MaxDrawdown  float64 `mapstructure:"max_drawdown"`   // 最大回撤熔断线
}

// OscillationFilterConfig 震荡过滤
type OscillationFilterConfig struct {
	TradeDuringOscillation bool `mapstructure:"trade_during_oscillation"`
}

// FeesConfig 手续费率
type FeesConfig struct {
	Maker float64 `mapstructure:"maker"`
	Taker float64 `mapstructure:"taker"`
}

// ExecutionConfig 执行层参数
type ExecutionConfig struct {
	CycleInterval          float64 `mapstructure:"cycle_interval"`           // 秒
	AccountRefreshInterval float64 `mapstructure:"account_refresh_interval"` // 秒
	QuantityPrecision      int     `mapstructure:"quantity_precision"`
	PricePrecision         int     `mapstructure:"price_precision"`
	MinQuantity            float64 `mapstructure:"min_quantity"`
	RetryDelay             float64 `mapstructure:"retry_delay"` // 周期失败后的退避秒数
	MaxRetries             int     `mapstructure:"max_retries"` // 0 表示不限次数
}

// TradingModeConfig 后端模式选择: simulated / hybrid / live
type TradingModeConfig struct {
	Mode            string  `mapstructure:"mode"`
	InitialBalance  float64 `mapstructure:"initial_balance"`
	SimulatedPrice  float64 `mapstructure:"simulated_price"`
	PriceVolatility float64 `mapstructure:"price_volatility"`
}

// ExchangeConfig 交易所连接信息
type ExchangeConfig struct {
	RESTURL   string `mapstructure:"rest_url"`
	WSURL     string `mapstructure:"ws_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Testnet   bool   `mapstructure:"testnet"`
}

// LogConfig 日志文件与滚动设置
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig Prometheus 指标端点
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Config 聚合全部配置
type Config struct {
	Trading           TradingConfig           `mapstructure:"trading"`
	Kline             KlineConfig             `mapstructure:"kline"`
	Indicators        IndicatorsConfig        `mapstructure:"indicators"`
	Risk              RiskConfig              `mapstructure:"risk_management"`
	OscillationFilter OscillationFilterConfig `mapstructure:"oscillation_filter"`
	Fees              FeesConfig              `mapstructure:"fees"`
	Execution         ExecutionConfig         `mapstructure:"execution"`
	TradingMode       TradingModeConfig       `mapstructure:"trading_mode"`
	Exchange          ExchangeConfig          `mapstructure:"exchange"`
	Log               LogConfig               `mapstructure:"log"`
	Metrics           MetricsConfig           `mapstructure:"metrics"`
}

// LoadConfig 读取并解析配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)

	// 缺省值
	v.SetDefault("trading.leverage", 3)
	v.SetDefault("trading.main_interval", "5m")
	v.SetDefault("trading.min_trade_interval", 60.0)
	v.SetDefault("kline.intervals", []string{"5m"})
	v.SetDefault("kline.history_limit", 200)
	v.SetDefault("indicators.macd.fast_period", 12)
	v.SetDefault("indicators.macd.slow_period", 26)
	v.SetDefault("indicators.macd.signal_period", 9)
	v.SetDefault("indicators.rsi.period", 14)
	v.SetDefault("indicators.rsi.overbought", 70.0)
	v.SetDefault("indicators.rsi.oversold", 30.0)
	v.SetDefault("indicators.bollinger.period", 20)
	v.SetDefault("indicators.bollinger.std_dev", 2.0)
	v.SetDefault("risk_management.risk_per_trade", 0.02)
	v.SetDefault("risk_management.stop_loss_pct", 0.02)
	v.SetDefault("risk_management.max_drawdown", 0.1)
	v.SetDefault("oscillation_filter.trade_during_oscillation", false)
	v.SetDefault("fees.maker", 0.0002)
	v.SetDefault("fees.taker", 0.0004)
	v.SetDefault("execution.cycle_interval", 60.0)
	v.SetDefault("execution.account_refresh_interval", 300.0)
	v.SetDefault("execution.quantity_precision", 3)
	v.SetDefault("execution.price_precision", 2)
	v.SetDefault("execution.min_quantity", 0.001)
	v.SetDefault("execution.retry_delay", 5.0)
	v.SetDefault("execution.max_retries", 0)
	v.SetDefault("trading_mode.mode", "simulated")
	v.SetDefault("trading_mode.initial_balance", 1000.0)
	v.SetDefault("trading_mode.simulated_price", 50000.0)
	v.SetDefault("trading_mode.price_volatility", 0.005)
	v.SetDefault("metrics.listen_addr", ":9090")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// API 凭据优先取环境变量 (配合 .env)
	if key := os.Getenv("EXCHANGE_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("EXCHANGE_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}

	return &cfg, nil
}

// Validate 校验配置的完整性，返回致命错误，其余仅告警
func (c *Config) Validate(logger *zap.Logger) error {
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Fees.Maker <= 0 || c.Fees.Taker <= 0 {
		return fmt.Errorf("fee rates must be positive")
	}
	if c.Risk.StopLossPct <= 0 {
		return fmt.Errorf("risk_management.stop_loss_pct must be positive")
	}

	if c.Trading.Leverage > 20 {
		logger.Warn("Leverage is very high, consider staying below 10x",
			zap.Int("leverage", c.Trading.Leverage))
	}
	if c.Risk.MaxDrawdown > 0.2 {
		logger.Warn("Max drawdown limit above 20%, consider a tighter limit",
			zap.Float64("max_drawdown", c.Risk.MaxDrawdown))
	}
	switch c.TradingMode.Mode {
	case "simulated", "hybrid", "live":
	default:
		return fmt.Errorf("unknown trading mode: %s", c.TradingMode.Mode)
	}
	if c.TradingMode.Mode == "live" && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("live mode requires exchange api_key and api_secret")
	}
	return nil
}
