package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

// SimulatorBackend 全模拟后端: 随机游走行情 + 虚拟资金账本
// 不访问任何真实 API
type SimulatorBackend struct {
	*simLedger

	cfg    *service.Config
	logger *zap.Logger
	rng    *rand.Rand

	mu        sync.Mutex
	lastPrice float64
	history   map[string][]model.Candle // Key: K 线周期
}

// NewSimulatorBackend 构造模拟后端
func NewSimulatorBackend(cfg *service.Config, logger *zap.Logger) *SimulatorBackend {
	l := logger.With(zap.String("backend", "simulated"))
	return &SimulatorBackend{
		simLedger: newSimLedger(cfg.TradingMode.InitialBalance, cfg.Trading.Leverage, cfg.Fees, l),
		cfg:       cfg,
		logger:    l,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		lastPrice: cfg.TradingMode.SimulatedPrice,
		history:   make(map[string][]model.Candle),
	}
}

// Initialize 预生成各周期的价格历史
func (b *SimulatorBackend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, interval := range b.cfg.Kline.Intervals {
		if _, ok := b.history[interval]; !ok {
			b.history[interval] = b.generateHistory(interval, historyDepth)
		}
	}
	b.logger.Info("Simulator backend initialized",
		zap.Float64("initial_balance", b.cfg.TradingMode.InitialBalance),
		zap.Float64("initial_price", b.cfg.TradingMode.SimulatedPrice))
	return nil
}

func (b *SimulatorBackend) Close() error { return nil }

// 预生成的历史 K 线数量
const historyDepth = 1000

// generateHistory 以配置的波动率随机游走生成历史 K 线
func (b *SimulatorBackend) generateHistory(interval string, depth int) []model.Candle {
	step, err := service.ParseIntervalDuration(interval)
	if err != nil {
		step = 5 * time.Minute
	}

	candles := make([]model.Candle, 0, depth)
	price := b.cfg.TradingMode.SimulatedPrice
	vol := b.cfg.TradingMode.PriceVolatility
	now := time.Now()

	for i := 0; i < depth; i++ {
		openTime := now.Add(-step * time.Duration(depth-i))
		change := (b.rng.Float64()*2 - 1) * vol
		open := price
		price = price * (1 + change)
		high := price * (1 + abs(change))
		low := price * (1 - abs(change))

		candles = append(candles, model.Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    100 + b.rng.Float64()*900,
			CloseTime: openTime.Add(step - time.Millisecond),
		})
	}
	b.lastPrice = price
	return candles
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// GetCandles 返回指定周期最近 limit 根 K 线
func (b *SimulatorBackend) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	series, ok := b.history[interval]
	if !ok {
		series = b.generateHistory(interval, historyDepth)
		b.history[interval] = series
	}
	if limit > 0 && limit < len(series) {
		series = series[len(series)-limit:]
	}
	out := make([]model.Candle, len(series))
	copy(out, series)
	return out, nil
}

// GetTickerPrice 随机游走一步并返回最新价格
func (b *SimulatorBackend) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	change := (b.rng.Float64()*2 - 1) * b.cfg.TradingMode.PriceVolatility
	b.lastPrice = b.lastPrice * (1 + change)
	return b.lastPrice, nil
}

func (b *SimulatorBackend) GetAccountBalance(ctx context.Context) (float64, float64, error) {
	balance, available := b.balances()
	return balance, available, nil
}

func (b *SimulatorBackend) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	return b.positionSnapshot(), nil
}

// PlaceOrder 以当前模拟价格立即成交
func (b *SimulatorBackend) PlaceOrder(ctx context.Context, req OrderRequest) (*model.Order, error) {
	price, _ := b.GetTickerPrice(ctx, req.Symbol)
	return b.fill(req, price)
}

func (b *SimulatorBackend) CancelOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	return b.cancelOrder(orderID)
}

func (b *SimulatorBackend) GetOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	return b.findOrder(orderID)
}
