package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func validConfig() *Config {
	return &Config{
		Trading: TradingConfig{Symbol: "BTCUSDT", Leverage: 3, MainInterval: "5m"},
		Risk:    RiskConfig{RiskPerTrade: 0.02, StopLossPct: 0.02, MaxDrawdown: 0.1},
		Fees:    FeesConfig{Maker: 0.0002, Taker: 0.0004},
		TradingMode: TradingModeConfig{
			Mode:           "simulated",
			InitialBalance: 1000,
		},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate(zap.NewNop()))
}

func TestValidateRequiresSymbol(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.Symbol = ""
	assert.Error(t, cfg.Validate(zap.NewNop()))
}

func TestValidateRejectsNonPositiveFees(t *testing.T) {
	cfg := validConfig()
	cfg.Fees.Taker = 0
	assert.Error(t, cfg.Validate(zap.NewNop()))

	cfg = validConfig()
	cfg.Fees.Maker = -0.0001
	assert.Error(t, cfg.Validate(zap.NewNop()))
}

func TestValidateRejectsNonPositiveStopLoss(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.StopLossPct = 0
	assert.Error(t, cfg.Validate(zap.NewNop()))
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.TradingMode.Mode = "paper"
	assert.Error(t, cfg.Validate(zap.NewNop()))
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.TradingMode.Mode = "live"
	assert.Error(t, cfg.Validate(zap.NewNop()))

	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	assert.NoError(t, cfg.Validate(zap.NewNop()))
}

// 高杠杆与宽回撤只是告警，不阻止启动
func TestValidateWarningsAreNotFatal(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.Leverage = 50
	cfg.Risk.MaxDrawdown = 0.5
	assert.NoError(t, cfg.Validate(zap.NewNop()))
}
