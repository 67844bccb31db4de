// Package risk 头寸规模计算与账户回撤追踪
package risk

import (
	"math"

	"crypto-perp-trader/internal/service"
)

// Sizer 根据账户余额和风控参数计算下单数量
type Sizer struct {
	riskPerTrade float64
	stopLossPct  float64
	precision    int
	minQuantity  float64
}

// NewSizer 初始化头寸计算器
func NewSizer(riskCfg *service.RiskConfig, execCfg *service.ExecutionConfig) *Sizer {
	return &Sizer{
		riskPerTrade: riskCfg.RiskPerTrade,
		stopLossPct:  riskCfg.StopLossPct,
		precision:    execCfg.QuantityPrecision,
		minQuantity:  execCfg.MinQuantity,
	}
}

// PositionSize 计算下单数量
// risk_capital = 余额 * 单笔风险比例
// raw_quantity = (risk_capital / 价格) / 止损百分比，再按精度取整
// 取整后小于最小下单量时返回 0，调用方视为跳过本次交易而非错误
func (s *Sizer) PositionSize(balance, price float64) float64 {
	if balance <= 0 || price <= 0 || s.stopLossPct <= 0 {
		return 0
	}

	riskCapital := balance * s.riskPerTrade
	rawQuantity := (riskCapital / price) / s.stopLossPct

	quantity := RoundToPrecision(rawQuantity, s.precision)
	if quantity < s.minQuantity {
		return 0
	}
	return quantity
}

// RoundToPrecision 四舍五入到指定的小数位数
func RoundToPrecision(v float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Round(v*scale) / scale
}
