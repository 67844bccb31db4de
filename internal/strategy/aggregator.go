package strategy

import (
	"go.uber.org/zap"

	"crypto-perp-trader/internal/service"
	"crypto-perp-trader/pkg/ta"
)

// 趋势检测的默认均线周期，与原始策略保持一致
const (
	trendShortPeriod = 20
	trendLongPeriod  = 50

	// 震荡检测用的 ATR 周期
	oscillationATRPeriod = 14
)

// Aggregator 负责把各指标的方向票聚合为一个综合交易信号
type Aggregator struct {
	cfg       *service.IndicatorsConfig
	oscFilter *service.OscillationFilterConfig
	logger    *zap.Logger
}

// NewAggregator 初始化信号聚合器
func NewAggregator(cfg *service.IndicatorsConfig, oscFilter *service.OscillationFilterConfig, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		cfg:       cfg,
		oscFilter: oscFilter,
		logger:    logger,
	}
}

// Evaluate 根据收盘价序列生成一次完整的信号集
func (a *Aggregator) Evaluate(closes []float64) SignalSet {
	signals := HoldSet()

	macd := ta.Macd(closes, a.cfg.MACD.FastPeriod, a.cfg.MACD.SlowPeriod, a.cfg.MACD.SignalPeriod)
	rsi := ta.Rsi(closes, a.cfg.RSI.Period)
	bb := ta.BollingerBands(closes, a.cfg.Bollinger.Period, a.cfg.Bollinger.StdDev)

	signals.Trend = ta.DetectTrend(closes, trendShortPeriod, trendLongPeriod)
	signals.IsOscillating = ta.DetectOscillation(closes, a.cfg.Bollinger.Period, a.cfg.Bollinger.StdDev, oscillationATRPeriod)

	// MACD 票: 金叉买入，死叉卖出
	if n := len(macd.MACD); n >= 2 {
		latestMACD, latestSignal := macd.MACD[n-1], macd.Signal[n-1]
		prevMACD, prevSignal := macd.MACD[n-2], macd.Signal[n-2]
		if prevMACD <= prevSignal && latestMACD > latestSignal {
			signals.MACDSignal = DirBuy
		} else if prevMACD >= prevSignal && latestMACD < latestSignal {
			signals.MACDSignal = DirSell
		}
	}

	// RSI 票: 超卖买入，超买卖出
	if n := len(rsi); n >= 1 {
		latest := rsi[n-1]
		if latest <= a.cfg.RSI.Oversold {
			signals.RSISignal = DirBuy
		} else if latest >= a.cfg.RSI.Overbought {
			signals.RSISignal = DirSell
		}
	}

	// 布林带票: %b 贴近下轨买入，贴近上轨卖出
	if n := len(bb.PercentB); n >= 1 {
		latest := bb.PercentB[n-1]
		if latest <= 0.2 {
			signals.BollingerSignal = DirBuy
		} else if latest >= 0.8 {
			signals.BollingerSignal = DirSell
		}
	}

	// 综合判断: 四票中至少两票同向才出信号
	buyVotes := countTrue(
		signals.MACDSignal == DirBuy,
		signals.RSISignal == DirBuy,
		signals.BollingerSignal == DirBuy,
		signals.Trend == ta.TrendUp || !signals.IsOscillating,
	)
	sellVotes := countTrue(
		signals.MACDSignal == DirSell,
		signals.RSISignal == DirSell,
		signals.BollingerSignal == DirSell,
		signals.Trend == ta.TrendDown || !signals.IsOscillating,
	)

	if buyVotes >= 2 {
		signals.OverallSignal = DirBuy
	} else if sellVotes >= 2 {
		signals.OverallSignal = DirSell
	}

	// 震荡过滤: 不允许震荡期交易时无条件强制持有
	if signals.IsOscillating && !a.oscFilter.TradeDuringOscillation && signals.OverallSignal != DirHold {
		a.logger.Info("Market oscillating, suppressing signal",
			zap.String("suppressed", string(signals.OverallSignal)))
		signals.OverallSignal = DirHold
	}

	return signals
}

func countTrue(votes ...bool) int {
	n := 0
	for _, v := range votes {
		if v {
			n++
		}
	}
	return n
}
