package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

func simulatorConfig() *service.Config {
	return &service.Config{
		Trading: service.TradingConfig{Symbol: "BTCUSDT", Leverage: 3, MainInterval: "5m"},
		Kline:   service.KlineConfig{Intervals: []string{"5m", "1h"}, HistoryLimit: 200},
		Fees:    service.FeesConfig{Maker: 0.0002, Taker: 0.0004},
		TradingMode: service.TradingModeConfig{
			Mode:            "simulated",
			InitialBalance:  100000,
			SimulatedPrice:  50000,
			PriceVolatility: 0.005,
		},
	}
}

func TestSimulatorGeneratesHistory(t *testing.T) {
	b := NewSimulatorBackend(simulatorConfig(), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))
	defer b.Close()

	candles, err := b.GetCandles(ctx, "BTCUSDT", "5m", 200)
	require.NoError(t, err)
	assert.Len(t, candles, 200)

	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i].OpenTime.After(candles[i-1].OpenTime),
			"candles must be ordered by open time")
	}
	for _, c := range candles {
		assert.Greater(t, c.Close, 0.0)
		assert.GreaterOrEqual(t, c.High, c.Low)
	}
}

func TestSimulatorTickerPricePositive(t *testing.T) {
	b := NewSimulatorBackend(simulatorConfig(), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	for i := 0; i < 10; i++ {
		price, err := b.GetTickerPrice(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.Greater(t, price, 0.0)
	}
}

func TestSimulatorOrderFillsImmediately(t *testing.T) {
	b := NewSimulatorBackend(simulatorConfig(), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	order, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: 0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, order.Status)
	assert.Greater(t, order.Price, 0.0)

	pos, err := b.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, model.PosLong, pos.Side)

	got, err := b.GetOrder(ctx, "BTCUSDT", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = b.GetOrder(ctx, "BTCUSDT", order.ID+12345)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSimulatorRejectsOversizedOrder(t *testing.T) {
	cfg := simulatorConfig()
	cfg.TradingMode.InitialBalance = 100
	b := NewSimulatorBackend(cfg, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx))

	_, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestFactorySelectsBackendByMode(t *testing.T) {
	cfg := simulatorConfig()
	logger := zap.NewNop()

	b, err := New(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &SimulatorBackend{}, b)

	cfg.TradingMode.Mode = "hybrid"
	b, err = New(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &HybridBackend{}, b)

	cfg.TradingMode.Mode = "live"
	b, err = New(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &BinanceBackend{}, b)

	cfg.TradingMode.Mode = "paper"
	_, err = New(cfg, logger)
	assert.Error(t, err)
}
