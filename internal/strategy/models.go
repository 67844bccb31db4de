package strategy

import (
	"fmt"

	"crypto-perp-trader/pkg/ta"
)

// Direction 单个指标或综合结果的方向性投票
type Direction string

const (
	DirBuy  Direction = "buy"
	DirSell Direction = "sell"
	DirHold Direction = "hold"
)

// SignalSet 一次完整分析的全部信号输出
// 各指标票与趋势/震荡标志一并保留，便于日志与指标上报
type SignalSet struct {
	MACDSignal      Direction
	RSISignal       Direction
	BollingerSignal Direction
	Trend           ta.Trend
	IsOscillating   bool
	OverallSignal   Direction
}

func (s SignalSet) String() string {
	return fmt.Sprintf("overall=%s macd=%s rsi=%s boll=%s trend=%s oscillating=%t",
		s.OverallSignal, s.MACDSignal, s.RSISignal, s.BollingerSignal, s.Trend, s.IsOscillating)
}

// HoldSet 返回一个全部持有的中性信号集
func HoldSet() SignalSet {
	return SignalSet{
		MACDSignal:      DirHold,
		RSISignal:       DirHold,
		BollingerSignal: DirHold,
		Trend:           ta.TrendSideways,
		IsOscillating:   false,
		OverallSignal:   DirHold,
	}
}
