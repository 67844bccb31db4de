// Package metrics Prometheus 指标注册
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 引擎运行指标集合
type Metrics struct {
	TradesExecuted prometheus.Counter
	OrdersRejected prometheus.Counter
	CycleErrors    prometheus.Counter

	Equity       prometheus.Gauge
	PeakEquity   prometheus.Gauge
	MaxDrawdown  prometheus.Gauge
	PositionSize prometheus.Gauge
}

// New 在给定的 Registerer 上注册全部指标
// 测试传入独立的 prometheus.NewRegistry 避免重复注册冲突
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "trades_executed_total",
			Help:      "Number of orders that reached a terminal fill.",
		}),
		OrdersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "orders_rejected_total",
			Help:      "Number of orders rejected by the backend, e.g. insufficient funds.",
		}),
		CycleErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "cycle_errors_total",
			Help:      "Number of trading cycles that failed and were retried.",
		}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Name:      "equity",
			Help:      "Account equity: balance plus unrealized PnL.",
		}),
		PeakEquity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Name:      "peak_equity",
			Help:      "Highest equity observed since start.",
		}),
		MaxDrawdown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Name:      "max_drawdown",
			Help:      "Largest fractional decline from peak equity.",
		}),
		PositionSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Name:      "position_size",
			Help:      "Current position quantity, 0 when flat.",
		}),
	}
}
