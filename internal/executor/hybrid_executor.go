package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"crypto-perp-trader/internal/api"
	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

// HybridBackend 混合模式: 真实市场行情 + 虚拟资金账本
// 价格来自交易所的 WebSocket 行情流，下单与持仓完全在本地模拟
type HybridBackend struct {
	*simLedger

	cfg       *service.Config
	connector *api.Connector
	logger    *zap.Logger

	mu          sync.RWMutex
	lastPrice   float64
	aggregators map[string]*klineAggregator // Key: K 线周期
}

// NewHybridBackend 构造混合后端
func NewHybridBackend(cfg *service.Config, logger *zap.Logger) *HybridBackend {
	l := logger.With(zap.String("backend", "hybrid"))
	return &HybridBackend{
		simLedger:   newSimLedger(cfg.TradingMode.InitialBalance, cfg.Trading.Leverage, cfg.Fees, l),
		cfg:         cfg,
		connector:   api.NewConnector(cfg.Exchange.WSURL, cfg.Trading.Symbol, logger),
		logger:      l,
		aggregators: make(map[string]*klineAggregator),
	}
}

// Initialize 连接行情流并为每个配置周期建立 K 线聚合器
// 短暂等待首个价格；拿不到时回退为配置的模拟价格，允许继续运行
func (b *HybridBackend) Initialize(ctx context.Context) error {
	for _, interval := range b.cfg.Kline.Intervals {
		d, err := service.ParseIntervalDuration(interval)
		if err != nil {
			return err
		}
		b.aggregators[interval] = newKlineAggregator(b.cfg.Trading.Symbol, d, b.cfg.Kline.HistoryLimit)
	}

	if err := b.connector.Start(); err != nil {
		b.logger.Error("Ticker stream unavailable, falling back to configured price", zap.Error(err))
		b.setLastPrice(b.cfg.TradingMode.SimulatedPrice)
		return nil
	}

	go b.consumeTickers()

	// 等待首个实时价格
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			b.logger.Warn("No live price received, falling back to configured price",
				zap.Float64("price", b.cfg.TradingMode.SimulatedPrice))
			b.setLastPrice(b.cfg.TradingMode.SimulatedPrice)
			return nil
		case <-tick.C:
			if p := b.currentPrice(); p > 0 {
				b.logger.Info("Hybrid backend initialized", zap.Float64("price", p))
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *HybridBackend) Close() error {
	b.connector.Stop()
	return nil
}

func (b *HybridBackend) consumeTickers() {
	for t := range b.connector.Tickers() {
		b.setLastPrice(t.Price)
		b.mu.RLock()
		for _, agg := range b.aggregators {
			agg.ProcessTicker(t)
		}
		b.mu.RUnlock()
	}
}

func (b *HybridBackend) setLastPrice(p float64) {
	b.mu.Lock()
	b.lastPrice = p
	b.mu.Unlock()
}

func (b *HybridBackend) currentPrice() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice
}

// GetCandles 返回从行情流聚合出的 K 线
// 刚启动时序列很短，指标层会按预热回退处理
func (b *HybridBackend) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	b.mu.RLock()
	agg, ok := b.aggregators[interval]
	b.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return agg.Candles(limit), nil
}

func (b *HybridBackend) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return b.currentPrice(), nil
}

func (b *HybridBackend) GetAccountBalance(ctx context.Context) (float64, float64, error) {
	balance, available := b.balances()
	return balance, available, nil
}

func (b *HybridBackend) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	return b.positionSnapshot(), nil
}

// PlaceOrder 以最新实时价格立即成交
func (b *HybridBackend) PlaceOrder(ctx context.Context, req OrderRequest) (*model.Order, error) {
	return b.fill(req, b.currentPrice())
}

func (b *HybridBackend) CancelOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	return b.cancelOrder(orderID)
}

func (b *HybridBackend) GetOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	return b.findOrder(orderID)
}
