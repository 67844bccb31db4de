package model

import (
	"fmt"
	"time"
)

// OrderSide 订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite 返回相反的订单方向 (平仓时使用)
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType 订单类型
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OrderStatus 订单状态
// 模拟/混合后端立即成交；实盘后端可能返回 NEW (挂单中)，引擎视为 pending 不做对账
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
)

// Order 由后端返回后不可变
type Order struct {
	ID            int64
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	Price         float64 // 成交价 (市价单为撮合时的最新价)
	Status        OrderStatus
	ReduceOnly    bool
	UpdateTime    int64 // 毫秒时间戳
}

// PositionSide 持仓方向
type PositionSide string

const (
	PosLong  PositionSide = "LONG"
	PosShort PositionSide = "SHORT"
	PosFlat  PositionSide = "FLAT"
)

// Position 单交易对持仓，首次成交隐式创建，完全平仓后回到 FLAT
type Position struct {
	Symbol     string
	Side       PositionSide
	Quantity   float64 // 始终 >= 0
	EntryPrice float64
	Leverage   int
}

// IsFlat 判断是否空仓
func (p *Position) IsFlat() bool {
	return p == nil || p.Side == PosFlat || p.Quantity == 0
}

// UnrealizedPnL 按当前价格计算浮动盈亏 (杠杆后名义)
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	if p.IsFlat() {
		return 0
	}
	lev := float64(p.Leverage)
	if lev <= 0 {
		lev = 1
	}
	if p.Side == PosLong {
		return (currentPrice - p.EntryPrice) * p.Quantity * lev
	}
	return (p.EntryPrice - currentPrice) * p.Quantity * lev
}

func (p *Position) String() string {
	if p.IsFlat() {
		return "FLAT"
	}
	return fmt.Sprintf("%s %s %.6f @ %.4f x%d", p.Side, p.Symbol, p.Quantity, p.EntryPrice, p.Leverage)
}

// TradeRecord 一笔终态成交的账本记录，只追加，写入后不再修改
type TradeRecord struct {
	Timestamp   time.Time
	Symbol      string
	Side        OrderSide
	Quantity    float64
	Price       float64
	OrderID     int64
	Fee         float64
	RealizedPnL float64 // 仅平仓腿结算，开仓腿为 0
}
