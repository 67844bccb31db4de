// Package ta 技术指标计算
// 包含 MACD、RSI、布林带、ATR、均线与量能指标
//
// 约定: 所有函数的输出序列长度与输入序列相同。数据长度不足是正常的
// 预热状态而不是错误，此时返回各指标定义的中性回退值。
package ta

import "math"

// Trend 趋势方向
type Trend string

const (
	TrendUp       Trend = "uptrend"
	TrendDown     Trend = "downtrend"
	TrendSideways Trend = "sideways"
)

// MACDResult MACD 指标序列
type MACDResult struct {
	MACD      []float64 // 快慢 EMA 之差
	Signal    []float64 // MACD 的 EMA
	Histogram []float64 // MACD - Signal
}

// BollingerResult 布林带序列
type BollingerResult struct {
	Middle    []float64
	Upper     []float64
	Lower     []float64
	Bandwidth []float64 // (上轨-下轨)/中轨 * 100
	PercentB  []float64 // (收盘-下轨)/(上轨-下轨)
}

// VolumeResult 量能指标序列
type VolumeResult struct {
	VolumeMA []float64
	OBV      []float64
	VPT      []float64
}

// emaSeries 递归 EMA，平滑因子 2/(N+1)，以首值为种子
// ema[0]=v[0], ema[t]=alpha*v[t]+(1-alpha)*ema[t-1]
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// rollingSum 以 at 为右端点的 period 窗口求和，调用方保证 at >= period-1
func rollingSum(values []float64, period int, at int) float64 {
	sum := 0.0
	for i := at - period + 1; i <= at; i++ {
		sum += values[i]
	}
	return sum
}

// Macd 计算 MACD 指标
// 数据长度不足 slow+signal 时返回三条全零序列
func Macd(closes []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	n := len(closes)
	if n < slowPeriod+signalPeriod {
		return MACDResult{
			MACD:      make([]float64, n),
			Signal:    make([]float64, n),
			Histogram: make([]float64, n),
		}
	}

	emaFast := emaSeries(closes, fastPeriod)
	emaSlow := emaSeries(closes, slowPeriod)

	macd := make([]float64, n)
	for i := 0; i < n; i++ {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signal := emaSeries(macd, signalPeriod)

	hist := make([]float64, n)
	for i := 0; i < n; i++ {
		hist[i] = macd[i] - signal[i]
	}

	return MACDResult{MACD: macd, Signal: signal, Histogram: hist}
}

// Rsi 计算 RSI 指标
// 涨跌幅用简单滚动均值，前 period 个值固定为中性值 50
// 数据长度不足 period+1 时返回全 50 序列
func Rsi(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = 50
	}
	if n < period+1 {
		return out
	}

	// delta[i] = closes[i] - closes[i-1]，delta[0] 不存在
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta // 损失取正值
		}
	}

	for i := period; i < n; i++ {
		avgGain := rollingSum(gains, period, i) / float64(period)
		avgLoss := rollingSum(losses, period, i) / float64(period)
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = 50
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// BollingerBands 计算布林带
// 滚动标准差使用样本标准差 (除以 period-1)
// 前 period-1 个位置回退为原始收盘价，bandwidth=0，%b=0.5
// 数据长度不足 period 时整条序列使用回退值
func BollingerBands(closes []float64, period int, stdDev float64) BollingerResult {
	n := len(closes)
	res := BollingerResult{
		Middle:    make([]float64, n),
		Upper:     make([]float64, n),
		Lower:     make([]float64, n),
		Bandwidth: make([]float64, n),
		PercentB:  make([]float64, n),
	}
	copy(res.Middle, closes)
	copy(res.Upper, closes)
	copy(res.Lower, closes)
	for i := range res.PercentB {
		res.PercentB[i] = 0.5
	}
	if n < period {
		return res
	}

	for i := period - 1; i < n; i++ {
		mean := rollingSum(closes, period, i) / float64(period)

		var varSum float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			varSum += d * d
		}
		std := math.Sqrt(varSum / float64(period-1))

		upper := mean + std*stdDev
		lower := mean - std*stdDev

		res.Middle[i] = mean
		res.Upper[i] = upper
		res.Lower[i] = lower

		if mean != 0 {
			res.Bandwidth[i] = (upper - lower) / mean * 100
		} else {
			res.Bandwidth[i] = 0
		}
		if width := upper - lower; width != 0 {
			res.PercentB[i] = (closes[i] - lower) / width
		} else {
			res.PercentB[i] = 0.5
		}
	}
	return res
}

// TrueRange 真实波幅序列: max(high-low, |high-prevClose|, |low-prevClose|)
// 首个位置没有前收盘价，取 high-low
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := highs[i] - lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// Atr 计算平均真实波幅
// 前 period-1 个位置回退为原始真实波幅，数据长度不足 period 时返回全零序列
func Atr(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if len(highs) < period || len(lows) < period || n < period {
		return out
	}

	tr := TrueRange(highs, lows, closes)
	copy(out, tr)
	for i := period - 1; i < n; i++ {
		out[i] = rollingSum(tr, period, i) / float64(period)
	}
	return out
}

// Ma 简单移动平均
// 前 period-1 个位置回退为原始收盘价，数据长度不足时原样返回输入
func Ma(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	copy(out, closes)
	if n < period {
		return out
	}
	for i := period - 1; i < n; i++ {
		out[i] = rollingSum(closes, period, i) / float64(period)
	}
	return out
}

// Ema 指数移动平均，数据长度不足时原样返回输入
func Ema(closes []float64, period int) []float64 {
	if len(closes) < period {
		out := make([]float64, len(closes))
		copy(out, closes)
		return out
	}
	return emaSeries(closes, period)
}

// VolumeIndicators 计算量能指标: 成交量均线、OBV、VPT
// OBV 按收盘价变动的符号累加成交量，持平时贡献 0，首值为 0
// VPT 累加 volume*(Δclose/prevClose)，首值为 0
// 数据长度不足 period 时 volume_ma 原样返回成交量，OBV/VPT 为全零
func VolumeIndicators(volumes, closes []float64, period int) VolumeResult {
	n := len(volumes)
	res := VolumeResult{
		VolumeMA: make([]float64, n),
		OBV:      make([]float64, n),
		VPT:      make([]float64, n),
	}
	copy(res.VolumeMA, volumes)
	if n < period {
		return res
	}

	for i := period - 1; i < n; i++ {
		res.VolumeMA[i] = rollingSum(volumes, period, i) / float64(period)
	}

	for i := 1; i < n && i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		switch {
		case delta > 0:
			res.OBV[i] = res.OBV[i-1] + volumes[i]
		case delta < 0:
			res.OBV[i] = res.OBV[i-1] - volumes[i]
		default:
			res.OBV[i] = res.OBV[i-1]
		}

		res.VPT[i] = res.VPT[i-1]
		if closes[i-1] != 0 {
			res.VPT[i] += volumes[i] * (delta / closes[i-1])
		}
	}
	return res
}

// DetectTrend 比较短期与长期均线的最新值判断趋势方向
// 短期均线高出长期均线 1% 为上涨趋势，低出 1% 为下跌趋势
// 数据长度不足 longPeriod 时返回 sideways
func DetectTrend(closes []float64, shortPeriod, longPeriod int) Trend {
	if len(closes) < longPeriod {
		return TrendSideways
	}

	shortMA := Ma(closes, shortPeriod)
	longMA := Ma(closes, longPeriod)

	latestShort := shortMA[len(shortMA)-1]
	latestLong := longMA[len(longMA)-1]

	switch {
	case latestShort > latestLong*1.01:
		return TrendUp
	case latestShort < latestLong*0.99:
		return TrendDown
	default:
		return TrendSideways
	}
}

// DetectOscillation 判断市场是否处于低波动震荡状态
// 条件: 最新布林带带宽 < 2.0 且 最新 ATR/收盘价 < 0.01
// 这里只有收盘价序列，ATR 的最高/最低价简化为收盘价
// 数据不足时返回 false
func DetectOscillation(closes []float64, bollingerPeriod int, bollingerStd float64, atrPeriod int) bool {
	if len(closes) < bollingerPeriod || len(closes) < atrPeriod {
		return false
	}

	bb := BollingerBands(closes, bollingerPeriod, bollingerStd)
	atr := Atr(closes, closes, closes, atrPeriod)

	latestBandwidth := bb.Bandwidth[len(bb.Bandwidth)-1]
	latestATR := atr[len(atr)-1]
	latestClose := closes[len(closes)-1]
	if latestClose <= 0 {
		return false
	}

	return latestBandwidth < 2.0 && latestATR/latestClose < 0.01
}
