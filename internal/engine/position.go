package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crypto-perp-trader/internal/executor"
	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

// Lifecycle 仓位生命周期状态机: FLAT / LONG / SHORT
// 独占持仓与成交账本，只有编排循环通过它改变仓位
type Lifecycle struct {
	symbol   string
	leverage int
	fees     service.FeesConfig
	backend  executor.Backend
	logger   *zap.Logger

	position *model.Position
	trades   []model.TradeRecord

	totalTrades      int
	profitableTrades int
	totalProfit      float64
	totalFees        float64
}

// NewLifecycle 初始化仓位生命周期
func NewLifecycle(cfg *service.Config, backend executor.Backend, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		symbol:   cfg.Trading.Symbol,
		leverage: cfg.Trading.Leverage,
		fees:     cfg.Fees,
		backend:  backend,
		logger:   logger,
	}
}

// Execute 按信号方向执行一笔市价开仓
// 现有持仓方向与信号相反时先全部平仓再反向开仓，信号翻转总是完整反手
func (l *Lifecycle) Execute(ctx context.Context, side model.OrderSide, quantity float64) error {
	if l.reversal(side) {
		closeOrder, err := l.backend.PlaceOrder(ctx, executor.OrderRequest{
			Symbol:     l.symbol,
			Side:       side,
			Type:       model.TypeMarket,
			Quantity:   l.position.Quantity,
			ReduceOnly: true,
		})
		if err != nil {
			return fmt.Errorf("close before reversal: %w", err)
		}
		l.applyFill(closeOrder, true)
	}

	order, err := l.backend.PlaceOrder(ctx, executor.OrderRequest{
		Symbol:   l.symbol,
		Side:     side,
		Type:     model.TypeMarket,
		Quantity: quantity,
	})
	if err != nil {
		return err
	}
	l.applyFill(order, false)
	return nil
}

// CloseAll 以 reduce-only 市价单平掉全部持仓，不再反向开仓
// 熔断与停机路径共用
func (l *Lifecycle) CloseAll(ctx context.Context) error {
	if l.position.IsFlat() {
		return nil
	}

	closeSide := model.SideSell
	if l.position.Side == model.PosShort {
		closeSide = model.SideBuy
	}

	order, err := l.backend.PlaceOrder(ctx, executor.OrderRequest{
		Symbol:     l.symbol,
		Side:       closeSide,
		Type:       model.TypeMarket,
		Quantity:   l.position.Quantity,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("close all positions: %w", err)
	}
	l.applyFill(order, true)
	return nil
}

// reversal 判断这笔成交是否会触发完整反手
func (l *Lifecycle) reversal(side model.OrderSide) bool {
	if l.position.IsFlat() {
		return false
	}
	return side == model.SideBuy && l.position.Side == model.PosShort ||
		side == model.SideSell && l.position.Side == model.PosLong
}

// applyFill 将一笔终态成交落账: 更新状态机并追加成交记录
// 非终态订单 (实盘挂单中) 只记日志，待其成交前不改变本地状态
func (l *Lifecycle) applyFill(order *model.Order, closing bool) {
	if order.Status != model.StatusFilled {
		l.logger.Warn("Order not yet filled, skipping ledger update",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(order.Status)))
		return
	}

	record := model.TradeRecord{
		Timestamp: time.UnixMilli(order.UpdateTime),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     order.Price,
		OrderID:   order.ID,
		Fee:       l.fee(order.Quantity, order.Price, order.Type),
	}

	if closing {
		// 平仓腿结算已实现盈亏
		record.RealizedPnL = l.position.UnrealizedPnL(order.Price)
		l.totalProfit += record.RealizedPnL
		if record.RealizedPnL > 0 {
			l.profitableTrades++
		}
		l.position = &model.Position{Symbol: l.symbol, Side: model.PosFlat, Leverage: l.leverage}
	} else {
		if l.position.IsFlat() {
			side := model.PosLong
			if order.Side == model.SideSell {
				side = model.PosShort
			}
			l.position = &model.Position{
				Symbol:     l.symbol,
				Side:       side,
				Quantity:   order.Quantity,
				EntryPrice: order.Price,
				Leverage:   l.leverage,
			}
		} else {
			// 同向加仓: 数量累加，开仓价覆盖为最新成交价
			l.position.Quantity += order.Quantity
			l.position.EntryPrice = order.Price
		}
	}

	l.trades = append(l.trades, record)
	l.totalTrades++
	l.totalFees += record.Fee

	l.logger.Info("Trade recorded",
		zap.String("side", string(record.Side)),
		zap.Float64("quantity", record.Quantity),
		zap.Float64("price", record.Price),
		zap.Float64("fee", record.Fee),
		zap.Float64("realized_pnl", record.RealizedPnL),
		zap.String("position", l.position.String()))
}

// fee 杠杆后名义价值乘以对应费率
func (l *Lifecycle) fee(quantity, price float64, orderType model.OrderType) float64 {
	rate := l.fees.Taker
	if orderType == model.TypeLimit {
		rate = l.fees.Maker
	}
	return quantity * price * float64(l.leverage) * rate
}

// Position 返回当前持仓快照，空仓时返回 nil
func (l *Lifecycle) Position() *model.Position {
	if l.position.IsFlat() {
		return nil
	}
	p := *l.position
	return &p
}

// SyncPosition 用后端的持仓快照覆盖本地状态 (实盘启动时对齐)
func (l *Lifecycle) SyncPosition(pos *model.Position) {
	if pos.IsFlat() {
		l.position = &model.Position{Symbol: l.symbol, Side: model.PosFlat, Leverage: l.leverage}
		return
	}
	p := *pos
	l.position = &p
}

// Trades 返回成交账本的副本
func (l *Lifecycle) Trades() []model.TradeRecord {
	out := make([]model.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}
