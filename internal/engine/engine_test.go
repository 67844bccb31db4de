package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crypto-perp-trader/internal/executor"
	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// fakeBackend 脚本化后端: 固定成交价，立即回报 FILLED
type fakeBackend struct {
	candles    []model.Candle
	candlesErr error
	price      float64
	balances   []float64 // 依次弹出，耗尽后重复最后一个
	available  float64
	position   *model.Position
	fillStatus model.OrderStatus

	placed       []executor.OrderRequest
	placeErr     error
	candleCalls  int
	balanceCalls int
	nextID       int64
}

func newFakeBackend(closes []float64, price, balance float64) *fakeBackend {
	return &fakeBackend{
		candles:    candlesFrom(closes),
		price:      price,
		balances:   []float64{balance},
		available:  balance * 10,
		fillStatus: model.StatusFilled,
	}
}

func candlesFrom(closes []float64) []model.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			OpenTime:  base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
			CloseTime: base.Add(time.Duration(i+1)*5*time.Minute - time.Millisecond),
		}
	}
	return out
}

func (f *fakeBackend) Initialize(ctx context.Context) error { return nil }
func (f *fakeBackend) Close() error                         { return nil }

func (f *fakeBackend) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	f.candleCalls++
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return f.candles, nil
}

func (f *fakeBackend) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func (f *fakeBackend) GetAccountBalance(ctx context.Context) (float64, float64, error) {
	f.balanceCalls++
	balance := f.balances[len(f.balances)-1]
	if f.balanceCalls <= len(f.balances) {
		balance = f.balances[f.balanceCalls-1]
	}
	return balance, f.available, nil
}

func (f *fakeBackend) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	return f.position, nil
}

func (f *fakeBackend) PlaceOrder(ctx context.Context, req executor.OrderRequest) (*model.Order, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextID++
	return &model.Order{
		ID:         f.nextID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		Price:      f.price,
		Status:     f.fillStatus,
		ReduceOnly: req.ReduceOnly,
		UpdateTime: time.Now().UnixMilli(),
	}, nil
}

func (f *fakeBackend) CancelOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	return nil, executor.ErrOrderNotFound
}

func (f *fakeBackend) GetOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	return nil, executor.ErrOrderNotFound
}

func testConfig() *service.Config {
	return &service.Config{
		Trading: service.TradingConfig{
			Symbol:           "BTCUSDT",
			Leverage:         3,
			MainInterval:     "5m",
			MinTradeInterval: 60,
		},
		Kline: service.KlineConfig{Intervals: []string{"5m"}, HistoryLimit: 200},
		Indicators: service.IndicatorsConfig{
			MACD:      service.MACDConfig{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
			RSI:       service.RSIConfig{Period: 14, Overbought: 70, Oversold: 30},
			Bollinger: service.BollingerConfig{Period: 20, StdDev: 2.0},
		},
		Risk:              service.RiskConfig{RiskPerTrade: 0.02, StopLossPct: 0.02, MaxDrawdown: 0.5},
		OscillationFilter: service.OscillationFilterConfig{TradeDuringOscillation: false},
		Fees:              service.FeesConfig{Maker: 0.0002, Taker: 0.0004},
		Execution: service.ExecutionConfig{
			CycleInterval:          60,
			AccountRefreshInterval: 300,
			QuantityPrecision:      3,
			MinQuantity:            0.001,
			RetryDelay:             5,
			MaxRetries:             0,
		},
		TradingMode: service.TradingModeConfig{Mode: "simulated", InitialBalance: 1000},
	}
}

// 等差收盘价序列
func closesSeq(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// --- Lifecycle ---

func TestLifecycleReversalProducesTwoTradeRecords(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend(nil, 50000, 10000)
	l := NewLifecycle(cfg, backend, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Execute(ctx, model.SideBuy, 0.02))
	pos := l.Position()
	require.NotNil(t, pos)
	assert.Equal(t, model.PosLong, pos.Side)
	assert.InDelta(t, 50000, pos.EntryPrice, 1e-9)

	backend.price = 51000
	require.NoError(t, l.Execute(ctx, model.SideSell, 0.02))

	trades := l.Trades()
	require.Len(t, trades, 3, "open + close + reopen")

	closeLeg := trades[1]
	assert.Equal(t, model.SideSell, closeLeg.Side)
	assert.InDelta(t, 0.02, closeLeg.Quantity, 1e-9)
	// 已实现盈亏 (51000-50000)*0.02*3
	assert.InDelta(t, 60, closeLeg.RealizedPnL, 1e-9)
	// 平仓腿手续费 = 0.02*51000*3 * taker
	assert.InDelta(t, 3060*0.0004, closeLeg.Fee, 1e-9)

	openLeg := trades[2]
	assert.Zero(t, openLeg.RealizedPnL, "opening legs settle no PnL")

	pos = l.Position()
	require.NotNil(t, pos)
	assert.Equal(t, model.PosShort, pos.Side)
	assert.InDelta(t, 0.02, pos.Quantity, 1e-9)

	// 反手 = 一笔 reduce-only 平仓单 + 一笔普通开仓单
	require.Len(t, backend.placed, 3)
	assert.True(t, backend.placed[1].ReduceOnly)
	assert.False(t, backend.placed[2].ReduceOnly)
}

func TestLifecycleCloseAllNeverReopens(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend(nil, 50000, 10000)
	l := NewLifecycle(cfg, backend, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Execute(ctx, model.SideBuy, 0.02))
	require.NoError(t, l.CloseAll(ctx))

	assert.Nil(t, l.Position())
	require.Len(t, backend.placed, 2)
	assert.Equal(t, model.SideSell, backend.placed[1].Side)
	assert.True(t, backend.placed[1].ReduceOnly)

	// 空仓后再次平仓是空操作
	require.NoError(t, l.CloseAll(ctx))
	assert.Len(t, backend.placed, 2)
}

func TestLifecycleSameSideAdditionKeepsLatestEntry(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend(nil, 50000, 100000)
	l := NewLifecycle(cfg, backend, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Execute(ctx, model.SideBuy, 0.02))
	backend.price = 52000
	require.NoError(t, l.Execute(ctx, model.SideBuy, 0.01))

	pos := l.Position()
	require.NotNil(t, pos)
	assert.InDelta(t, 0.03, pos.Quantity, 1e-9)
	// 加仓覆盖开仓价为最新成交价，不做加权平均
	assert.InDelta(t, 52000, pos.EntryPrice, 1e-9)
	assert.Len(t, l.Trades(), 2)
}

func TestLifecyclePendingOrderLeavesStateUntouched(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend(nil, 50000, 10000)
	backend.fillStatus = model.StatusNew
	l := NewLifecycle(cfg, backend, zap.NewNop())

	require.NoError(t, l.Execute(context.Background(), model.SideBuy, 0.02))
	assert.Nil(t, l.Position(), "non-terminal orders are not reconciled")
	assert.Empty(t, l.Trades())
}

// --- Engine ---

func TestEngineExecutesBuyOnOversoldSeries(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend(closesSeq(200, -2, 60), 82, 1000)
	eng := New(cfg, backend, nil, newFakeClock(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, eng.Initialize(ctx))
	require.NoError(t, eng.RunCycle(ctx))

	require.Len(t, backend.placed, 1)
	order := backend.placed[0]
	assert.Equal(t, model.SideBuy, order.Side)
	// (1000*0.02/82)/0.02 取三位小数
	assert.InDelta(t, 12.195, order.Quantity, 1e-9)
	assert.False(t, order.ReduceOnly)

	pos := eng.Position()
	require.NotNil(t, pos)
	assert.Equal(t, model.PosLong, pos.Side)
	assert.Equal(t, 1, eng.Stats().TotalTrades)
}

func TestEngineHoldsOnShortHistory(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend(closesSeq(200, -2, 40), 122, 1000)
	eng := New(cfg, backend, nil, newFakeClock(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, eng.Initialize(ctx))
	require.NoError(t, eng.RunCycle(ctx))

	assert.Empty(t, backend.placed, "fewer than 50 closes must not trade")
}

func TestEngineMinTradeIntervalGate(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	backend := newFakeBackend(closesSeq(200, -2, 60), 82, 1000)
	eng := New(cfg, backend, nil, clock, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, eng.Initialize(ctx))
	require.NoError(t, eng.RunCycle(ctx))
	require.Len(t, backend.placed, 1)

	// 间隔未到，同样的信号不再下单
	require.NoError(t, eng.RunCycle(ctx))
	assert.Len(t, backend.placed, 1)

	clock.Sleep(61 * time.Second)
	require.NoError(t, eng.RunCycle(ctx))
	assert.Len(t, backend.placed, 2)
}

func TestEngineSignalReversal(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.MinTradeInterval = 0
	backend := newFakeBackend(closesSeq(200, -2, 60), 82, 1000)
	eng := New(cfg, backend, nil, newFakeClock(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, eng.Initialize(ctx))
	require.NoError(t, eng.RunCycle(ctx))
	require.Len(t, backend.placed, 1)
	openQty := backend.placed[0].Quantity

	// 行情翻转为急涨, 卖出信号触发完整反手
	backend.candles = candlesFrom(closesSeq(50, 2, 60))
	backend.price = 168
	require.NoError(t, eng.RunCycle(ctx))

	require.Len(t, backend.placed, 3)
	closeReq := backend.placed[1]
	assert.Equal(t, model.SideSell, closeReq.Side)
	assert.True(t, closeReq.ReduceOnly)
	assert.InDelta(t, openQty, closeReq.Quantity, 1e-9, "reversal closes the full position")

	pos := eng.Position()
	require.NotNil(t, pos)
	assert.Equal(t, model.PosShort, pos.Side)

	trades := eng.Trades()
	require.Len(t, trades, 3)
	// 平多腿盈亏 (168-82)*qty*3
	assert.InDelta(t, (168-82)*openQty*3, trades[1].RealizedPnL, 1e-6)
}

func TestEngineInsufficientFundsSkipsTrade(t *testing.T) {
	cfg := testConfig()
	backend := newFakeBackend(closesSeq(200, -2, 60), 82, 1000)
	backend.placeErr = executor.ErrInsufficientFunds
	eng := New(cfg, backend, nil, newFakeClock(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, eng.Initialize(ctx))
	require.NoError(t, eng.RunCycle(ctx), "insufficient funds is a skip, not a cycle failure")
	assert.Zero(t, eng.Stats().TotalTrades)
	assert.Nil(t, eng.Position())
}

func TestEngineStats(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.MinTradeInterval = 0
	backend := newFakeBackend(closesSeq(200, -2, 60), 82, 1000)
	eng := New(cfg, backend, nil, newFakeClock(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, eng.Initialize(ctx))
	require.NoError(t, eng.RunCycle(ctx))

	backend.candles = candlesFrom(closesSeq(50, 2, 60))
	backend.price = 168
	require.NoError(t, eng.RunCycle(ctx))

	stats := eng.Stats()
	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 1, stats.ProfitableTrades)
	assert.Greater(t, stats.TotalProfit, 0.0)
	assert.Greater(t, stats.TotalFees, 0.0)
	assert.InDelta(t, stats.TotalProfit-stats.TotalFees, stats.NetProfit, 1e-9)
	assert.InDelta(t, 100.0/3, stats.WinRate, 1e-6)
}
