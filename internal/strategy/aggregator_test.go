package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"crypto-perp-trader/internal/service"
	"crypto-perp-trader/pkg/ta"
)

func testIndicatorsConfig() *service.IndicatorsConfig {
	return &service.IndicatorsConfig{
		MACD:      service.MACDConfig{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
		RSI:       service.RSIConfig{Period: 14, Overbought: 70, Oversold: 30},
		Bollinger: service.BollingerConfig{Period: 20, StdDev: 2.0},
	}
}

func newTestAggregator(tradeDuringOscillation bool) *Aggregator {
	return NewAggregator(
		testIndicatorsConfig(),
		&service.OscillationFilterConfig{TradeDuringOscillation: tradeDuringOscillation},
		zap.NewNop(),
	)
}

func closesSeries(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestEvaluateEmptySeriesHolds(t *testing.T) {
	agg := newTestAggregator(false)
	signals := agg.Evaluate(nil)
	assert.Equal(t, DirHold, signals.OverallSignal)
}

func TestEvaluateConstantSeriesHolds(t *testing.T) {
	agg := newTestAggregator(true)
	signals := agg.Evaluate(closesSeries(100, 0, 60))

	assert.Equal(t, DirHold, signals.OverallSignal)
	assert.Equal(t, DirHold, signals.MACDSignal)
	assert.Equal(t, DirHold, signals.RSISignal)
	assert.Equal(t, DirHold, signals.BollingerSignal)
	assert.True(t, signals.IsOscillating, "flat market is an oscillation regime")
}

// 持续急跌: RSI 超卖 + 收盘贴近下轨共两票买入，且波动足够大不触发震荡过滤
func TestEvaluateOversoldSeriesSignalsBuy(t *testing.T) {
	agg := newTestAggregator(false)
	signals := agg.Evaluate(closesSeries(200, -2, 60))

	assert.Equal(t, DirBuy, signals.RSISignal)
	assert.Equal(t, DirBuy, signals.BollingerSignal)
	assert.False(t, signals.IsOscillating)
	assert.Equal(t, ta.TrendDown, signals.Trend)
	assert.Equal(t, DirBuy, signals.OverallSignal)
}

// 持续急涨: RSI 超买 + 收盘贴近上轨共两票卖出
func TestEvaluateOverboughtSeriesSignalsSell(t *testing.T) {
	agg := newTestAggregator(false)
	signals := agg.Evaluate(closesSeries(50, 2, 60))

	assert.Equal(t, DirSell, signals.RSISignal)
	assert.Equal(t, DirSell, signals.BollingerSignal)
	assert.Equal(t, ta.TrendUp, signals.Trend)
	assert.Equal(t, DirSell, signals.OverallSignal)
}

// 微幅阴跌: 票数足够买入但市场处于震荡状态，过滤器强制持有
func TestEvaluateOscillationFilterSuppressesSignal(t *testing.T) {
	closes := closesSeries(100.59, -0.01, 60)

	suppressed := newTestAggregator(false).Evaluate(closes)
	assert.True(t, suppressed.IsOscillating)
	assert.Equal(t, DirBuy, suppressed.RSISignal)
	assert.Equal(t, DirHold, suppressed.OverallSignal, "oscillation filter must force hold")

	allowed := newTestAggregator(true).Evaluate(closes)
	assert.True(t, allowed.IsOscillating)
	assert.Equal(t, DirBuy, allowed.OverallSignal, "same votes trade when oscillation trading is allowed")
}

func TestHoldSetIsNeutral(t *testing.T) {
	s := HoldSet()
	assert.Equal(t, DirHold, s.OverallSignal)
	assert.Equal(t, ta.TrendSideways, s.Trend)
	assert.False(t, s.IsOscillating)
}
