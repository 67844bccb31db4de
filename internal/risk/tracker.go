package risk

import (
	"go.uber.org/zap"

	"crypto-perp-trader/internal/model"
)

// AccountState 账户状态快照
type AccountState struct {
	Balance          float64
	AvailableBalance float64
	Equity           float64 // 余额 + 浮动盈亏
	PeakEquity       float64 // 引擎启动以来的净值峰值
	MaxDrawdown      float64 // 历史最大回撤比例，单调不减
}

// Tracker 维护账户净值与回撤，单写者: 只有编排循环更新它
type Tracker struct {
	state       AccountState
	maxDrawdown float64 // 熔断线
	initialized bool
	logger      *zap.Logger
}

// NewTracker 初始化账户追踪器
func NewTracker(maxDrawdownLimit float64, logger *zap.Logger) *Tracker {
	return &Tracker{
		maxDrawdown: maxDrawdownLimit,
		logger:      logger,
	}
}

// Update 用最新的余额、持仓与价格刷新账户状态
// equity = balance + 浮动盈亏；峰值与最大回撤随之更新
func (t *Tracker) Update(balance, availableBalance float64, pos *model.Position, currentPrice float64) AccountState {
	equity := balance + pos.UnrealizedPnL(currentPrice)

	t.state.Balance = balance
	t.state.AvailableBalance = availableBalance
	t.state.Equity = equity

	if !t.initialized || equity > t.state.PeakEquity {
		t.state.PeakEquity = equity
		t.initialized = true
	}

	// 回撤只在峰值为正时有定义
	if t.state.PeakEquity > 0 {
		drawdown := (t.state.PeakEquity - equity) / t.state.PeakEquity
		if drawdown > t.state.MaxDrawdown {
			t.state.MaxDrawdown = drawdown
			t.logger.Warn("New max drawdown",
				zap.Float64("drawdown", drawdown),
				zap.Float64("peak_equity", t.state.PeakEquity),
				zap.Float64("equity", equity))
		}
	}

	return t.state
}

// State 返回当前账户状态快照
func (t *Tracker) State() AccountState {
	return t.state
}

// DrawdownLimitReached 熔断条件: 历史最大回撤达到配置上限
func (t *Tracker) DrawdownLimitReached() bool {
	return t.state.MaxDrawdown >= t.maxDrawdown
}
