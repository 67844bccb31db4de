package model

import "time"

// Ticker 代表最小粒度的市场数据（成交或价格快照）
type Ticker struct {
	Symbol    string  // 所属交易对，例如 "BTCUSDT"
	Timestamp int64   // 毫秒时间戳
	Price     float64 // 价格
	Volume    float64 // 交易量 (0 表示价格快照)
}

// Candle 代表一根固定周期的 OHLCV K 线
// 同一周期内的序列按 OpenTime 严格递增，写入后不可变
type Candle struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Closes 从 K 线序列提取收盘价序列
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs 从 K 线序列提取最高价序列
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows 从 K 线序列提取最低价序列
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes 从 K 线序列提取成交量序列
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
