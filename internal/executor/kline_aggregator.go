package executor

import (
	"sync"
	"time"

	"crypto-perp-trader/internal/model"
)

// klineAggregator 将实时 Ticker 聚合为固定周期的 K 线
// 混合后端没有历史 K 线接口，靠它从行情流累积出分析所需的序列
type klineAggregator struct {
	mu       sync.Mutex
	symbol   string
	interval time.Duration
	current  model.Candle
	started  bool
	closed   []model.Candle
	maxKeep  int
}

func newKlineAggregator(symbol string, interval time.Duration, maxKeep int) *klineAggregator {
	return &klineAggregator{
		symbol:   symbol,
		interval: interval,
		maxKeep:  maxKeep,
	}
}

// ProcessTicker 将一个 Ticker 归入所属周期
// Ticker 跨过周期边界时封闭上一根 K 线
func (agg *klineAggregator) ProcessTicker(t model.Ticker) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	tickerTime := time.UnixMilli(t.Timestamp)
	openTime := tickerTime.Truncate(agg.interval)

	if agg.started && openTime.After(agg.current.OpenTime) {
		// K 线完成，归档并以上一根收盘价作为新开盘价
		agg.closed = append(agg.closed, agg.current)
		if len(agg.closed) > agg.maxKeep {
			agg.closed = agg.closed[len(agg.closed)-agg.maxKeep:]
		}
		agg.current = model.Candle{
			OpenTime:  openTime,
			Open:      agg.current.Close,
			High:      t.Price,
			Low:       t.Price,
			CloseTime: openTime.Add(agg.interval - time.Millisecond),
		}
	}

	if !agg.started {
		agg.current = model.Candle{
			OpenTime:  openTime,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			CloseTime: openTime.Add(agg.interval - time.Millisecond),
		}
		agg.started = true
	}

	agg.current.Close = t.Price
	if t.Price > agg.current.High {
		agg.current.High = t.Price
	}
	if t.Price < agg.current.Low {
		agg.current.Low = t.Price
	}
	agg.current.Volume += t.Volume
}

// Candles 返回已封闭的 K 线加上正在构建的最后一根
func (agg *klineAggregator) Candles(limit int) []model.Candle {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	out := make([]model.Candle, 0, len(agg.closed)+1)
	out = append(out, agg.closed...)
	if agg.started {
		out = append(out, agg.current)
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out
}
