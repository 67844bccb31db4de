// Package engine 交易引擎与编排循环
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"crypto-perp-trader/internal/executor"
	"crypto-perp-trader/internal/metrics"
	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/risk"
	"crypto-perp-trader/internal/service"
	"crypto-perp-trader/internal/strategy"
)

// 信号分析所需的最少收盘价数量
const minAnalysisCloses = 50

// Stats 交易统计快照
type Stats struct {
	TotalTrades      int
	ProfitableTrades int
	WinRate          float64 // 百分比
	TotalProfit      float64
	TotalFees        float64
	NetProfit        float64
	MaxDrawdown      float64
	Balance          float64
	Equity           float64
	PeakEquity       float64
}

// Engine 交易引擎: 持有全部决策组件，由编排循环逐周期驱动
// 进程内显式构造一次，按引用传递，不使用全局单例
type Engine struct {
	cfg        *service.Config
	backend    executor.Backend
	aggregator *strategy.Aggregator
	sizer      *risk.Sizer
	tracker    *risk.Tracker
	lifecycle  *Lifecycle
	metrics    *metrics.Metrics
	clock      Clock
	logger     *zap.Logger

	klines             map[string][]model.Candle
	lastTradeTime      time.Time
	lastAccountRefresh time.Time
}

// New 组装交易引擎
func New(cfg *service.Config, backend executor.Backend, m *metrics.Metrics, clock Clock, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		backend:    backend,
		aggregator: strategy.NewAggregator(&cfg.Indicators, &cfg.OscillationFilter, logger),
		sizer:      risk.NewSizer(&cfg.Risk, &cfg.Execution),
		tracker:    risk.NewTracker(cfg.Risk.MaxDrawdown, logger),
		lifecycle:  NewLifecycle(cfg, backend, logger),
		metrics:    m,
		clock:      clock,
		logger:     logger,
		klines:     make(map[string][]model.Candle),
	}
}

// Initialize 初始化后端、预载历史数据并对齐账户状态
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.backend.Initialize(ctx); err != nil {
		return err
	}
	e.loadHistoricalData(ctx)

	// 实盘重启时可能带着已有仓位
	pos, err := e.backend.GetPosition(ctx, e.cfg.Trading.Symbol)
	if err == nil {
		e.lifecycle.SyncPosition(pos)
	}

	if err := e.updateAccountInfo(ctx); err != nil {
		return err
	}
	e.logger.Info("Trading engine initialized",
		zap.String("symbol", e.cfg.Trading.Symbol),
		zap.String("mode", e.cfg.TradingMode.Mode))
	return nil
}

// Close 释放后端资源
func (e *Engine) Close() error {
	return e.backend.Close()
}

// loadHistoricalData 为每个配置周期预载历史 K 线
// 单个周期失败不阻止启动，后续周期里会重新拉取
func (e *Engine) loadHistoricalData(ctx context.Context) {
	for _, interval := range e.cfg.Kline.Intervals {
		candles, err := e.backend.GetCandles(ctx, e.cfg.Trading.Symbol, interval, e.cfg.Kline.HistoryLimit)
		if err != nil {
			e.logger.Error("Failed to load historical candles",
				zap.String("interval", interval), zap.Error(err))
			continue
		}
		e.klines[interval] = candles
		e.logger.Info("Historical candles loaded",
			zap.String("interval", interval), zap.Int("count", len(candles)))
	}
}

// refreshMarketData 刷新主周期的 K 线序列
func (e *Engine) refreshMarketData(ctx context.Context) error {
	interval := e.cfg.Trading.MainInterval
	candles, err := e.backend.GetCandles(ctx, e.cfg.Trading.Symbol, interval, e.cfg.Kline.HistoryLimit)
	if err != nil {
		return err
	}
	e.klines[interval] = candles
	return nil
}

// updateAccountInfo 从后端同步余额与持仓并刷新净值/回撤
func (e *Engine) updateAccountInfo(ctx context.Context) error {
	balance, available, err := e.backend.GetAccountBalance(ctx)
	if err != nil {
		return err
	}
	pos, err := e.backend.GetPosition(ctx, e.cfg.Trading.Symbol)
	if err != nil {
		return err
	}

	var price float64
	if !pos.IsFlat() {
		price, err = e.backend.GetTickerPrice(ctx, e.cfg.Trading.Symbol)
		if err != nil {
			return err
		}
	}

	state := e.tracker.Update(balance, available, pos, price)
	e.lastAccountRefresh = e.clock.Now()

	if e.metrics != nil {
		e.metrics.Equity.Set(state.Equity)
		e.metrics.PeakEquity.Set(state.PeakEquity)
		e.metrics.MaxDrawdown.Set(state.MaxDrawdown)
		if pos.IsFlat() {
			e.metrics.PositionSize.Set(0)
		} else {
			e.metrics.PositionSize.Set(pos.Quantity)
		}
	}
	return nil
}

// analyzeMarket 在主周期收盘价上运行全部指标与信号聚合
// 数据不足 50 根时返回中性信号集
func (e *Engine) analyzeMarket() strategy.SignalSet {
	candles, ok := e.klines[e.cfg.Trading.MainInterval]
	if !ok || len(candles) < minAnalysisCloses {
		return strategy.HoldSet()
	}
	return e.aggregator.Evaluate(model.Closes(candles))
}

// canTrade 交易闸门: 熔断未触发且距离上次成交超过最小间隔
func (e *Engine) canTrade() bool {
	if e.tracker.DrawdownLimitReached() {
		e.logger.Warn("Max drawdown limit reached, trading suspended")
		return false
	}
	minInterval := time.Duration(e.cfg.Trading.MinTradeInterval * float64(time.Second))
	if !e.lastTradeTime.IsZero() && e.clock.Now().Sub(e.lastTradeTime) < minInterval {
		return false
	}
	return true
}

// executeTrade 按信号方向计算头寸并下单
// 余额不足与数量为零都按跳过处理，不视为周期失败
func (e *Engine) executeTrade(ctx context.Context, signal strategy.Direction, price float64) error {
	if !e.canTrade() {
		return nil
	}

	quantity := e.sizer.PositionSize(e.tracker.State().Balance, price)
	if quantity <= 0 {
		e.logger.Warn("Position size rounded to zero, skipping trade",
			zap.Float64("balance", e.tracker.State().Balance),
			zap.Float64("price", price))
		return nil
	}

	side := model.SideBuy
	if signal == strategy.DirSell {
		side = model.SideSell
	}

	if err := e.lifecycle.Execute(ctx, side, quantity); err != nil {
		if errors.Is(err, executor.ErrInsufficientFunds) {
			e.logger.Warn("Trade skipped: insufficient funds",
				zap.Float64("quantity", quantity), zap.Float64("price", price))
			if e.metrics != nil {
				e.metrics.OrdersRejected.Inc()
			}
			return nil
		}
		return err
	}

	e.lastTradeTime = e.clock.Now()
	if e.metrics != nil {
		e.metrics.TradesExecuted.Inc()
	}

	e.logger.Info("Trade executed",
		zap.String("signal", string(signal)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price))

	return e.updateAccountInfo(ctx)
}

// CloseAllPositions 平掉全部持仓并同步账户
func (e *Engine) CloseAllPositions(ctx context.Context) error {
	if err := e.lifecycle.CloseAll(ctx); err != nil {
		return err
	}
	e.lastTradeTime = e.clock.Now()
	return e.updateAccountInfo(ctx)
}

// DrawdownLimitReached 暴露熔断状态给编排循环
func (e *Engine) DrawdownLimitReached() bool {
	return e.tracker.DrawdownLimitReached()
}

// RunCycle 执行一个完整交易周期
// 顺序: 刷新行情 -> 定期刷新账户 -> 分析 -> 取价 -> 决策执行 -> 状态日志
func (e *Engine) RunCycle(ctx context.Context) error {
	if err := e.refreshMarketData(ctx); err != nil {
		return err
	}

	refreshEvery := time.Duration(e.cfg.Execution.AccountRefreshInterval * float64(time.Second))
	if e.lastAccountRefresh.IsZero() || e.clock.Now().Sub(e.lastAccountRefresh) > refreshEvery {
		if err := e.updateAccountInfo(ctx); err != nil {
			return err
		}
	}

	signals := e.analyzeMarket()

	price, err := e.backend.GetTickerPrice(ctx, e.cfg.Trading.Symbol)
	if err != nil {
		return err
	}

	if signals.OverallSignal != strategy.DirHold {
		if err := e.executeTrade(ctx, signals.OverallSignal, price); err != nil {
			return err
		}
	}

	e.logStatus(signals, price)
	return nil
}

// logStatus 输出一条周期状态快照
func (e *Engine) logStatus(signals strategy.SignalSet, price float64) {
	state := e.tracker.State()
	stats := e.Stats()
	e.logger.Info("Trading status",
		zap.Float64("price", price),
		zap.Float64("balance", state.Balance),
		zap.Float64("equity", state.Equity),
		zap.Float64("max_drawdown", state.MaxDrawdown),
		zap.String("position", e.lifecycle.position.String()),
		zap.String("signal", string(signals.OverallSignal)),
		zap.String("signals", signals.String()),
		zap.Int("total_trades", stats.TotalTrades),
		zap.Float64("total_profit", stats.TotalProfit),
		zap.Float64("total_fees", stats.TotalFees))
}

// Stats 汇总交易统计
func (e *Engine) Stats() Stats {
	state := e.tracker.State()
	l := e.lifecycle

	winRate := 0.0
	if l.totalTrades > 0 {
		winRate = float64(l.profitableTrades) / float64(l.totalTrades) * 100
	}

	return Stats{
		TotalTrades:      l.totalTrades,
		ProfitableTrades: l.profitableTrades,
		WinRate:          winRate,
		TotalProfit:      l.totalProfit,
		TotalFees:        l.totalFees,
		NetProfit:        l.totalProfit - l.totalFees,
		MaxDrawdown:      state.MaxDrawdown,
		Balance:          state.Balance,
		Equity:           state.Equity,
		PeakEquity:       state.PeakEquity,
	}
}

// Trades 返回成交账本副本
func (e *Engine) Trades() []model.TradeRecord {
	return e.lifecycle.Trades()
}

// Position 返回当前持仓快照
func (e *Engine) Position() *model.Position {
	return e.lifecycle.Position()
}
