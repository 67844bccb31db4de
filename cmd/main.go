package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crypto-perp-trader/internal/engine"
	"crypto-perp-trader/internal/executor"
	"crypto-perp-trader/internal/metrics"
	"crypto-perp-trader/internal/service"
)

func main() {
	// .env 仅承载 API 凭据，缺失时直接使用配置文件
	_ = godotenv.Load()

	configPath := "config"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Configuration directory 'config/' not found. Please create it.")
		os.Exit(1)
	}

	cfg, err := service.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := service.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(logger); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	backend, err := executor.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create execution backend", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr, registry, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(cfg, backend, m, engine.RealClock(), logger)
	if err := eng.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize trading engine", zap.Error(err))
	}
	defer eng.Close()

	loop := engine.NewLoop(eng, engine.RealClock(), logger)
	if err := loop.Run(ctx); err != nil {
		logger.Error("Trading loop exited with error", zap.Error(err))
	}

	stats := eng.Stats()
	logger.Info("Final trading stats",
		zap.Int("total_trades", stats.TotalTrades),
		zap.Int("profitable_trades", stats.ProfitableTrades),
		zap.Float64("win_rate", stats.WinRate),
		zap.Float64("total_profit", stats.TotalProfit),
		zap.Float64("total_fees", stats.TotalFees),
		zap.Float64("net_profit", stats.NetProfit),
		zap.Float64("max_drawdown", stats.MaxDrawdown))
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("Metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped", zap.Error(err))
	}
}
