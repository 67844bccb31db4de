// Package executor 交易执行后端
// 引擎只依赖 Backend 能力集，不关心背后是实盘、全模拟还是混合模式
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

var (
	// ErrInsufficientFunds 订单名义价值超过可用余额
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOrderNotFound 按 ID 查询不到订单
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol     string
	Side       model.OrderSide
	Type       model.OrderType
	Quantity   float64
	ReduceOnly bool // 只允许缩减仓位，不允许开仓或反向
}

// Backend 是交易执行后端的通用能力集
type Backend interface {
	// Initialize 建立连接并准备市场数据
	Initialize(ctx context.Context) error

	// Close 释放连接资源
	Close() error

	// GetCandles 返回按开盘时间递增排列的 K 线序列
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)

	// GetTickerPrice 返回最新价格
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetAccountBalance 返回账户余额与可用余额
	GetAccountBalance(ctx context.Context) (balance, available float64, err error)

	// GetPosition 返回当前持仓，空仓时返回 nil
	GetPosition(ctx context.Context, symbol string) (*model.Position, error)

	// PlaceOrder 下单；名义价值超过可用余额时返回 ErrInsufficientFunds
	PlaceOrder(ctx context.Context, req OrderRequest) (*model.Order, error)

	// CancelOrder 按 ID 撤单
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error)

	// GetOrder 按 ID 查询订单，未知 ID 返回 ErrOrderNotFound
	GetOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error)
}

// New 按配置的交易模式构造对应的后端实现
// 模式在构造期显式选定，运行期不再做类型判断
func New(cfg *service.Config, logger *zap.Logger) (Backend, error) {
	switch cfg.TradingMode.Mode {
	case "simulated":
		return NewSimulatorBackend(cfg, logger), nil
	case "hybrid":
		return NewHybridBackend(cfg, logger), nil
	case "live":
		return NewBinanceBackend(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown trading mode: %s", cfg.TradingMode.Mode)
	}
}
