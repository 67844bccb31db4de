package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock 抽象时间来源，编排循环通过它取时与休眠
// 测试注入假时钟后无需真实等待
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock 返回基于系统时间的时钟
func RealClock() Clock { return realClock{} }

// RetryPolicy 周期失败后的重试策略
// MaxRetries 限制连续失败次数，0 表示不限
type RetryPolicy struct {
	Delay      time.Duration
	MaxRetries int
}

// ErrAlreadyRunning 编排循环同一时刻只允许一个实例运行
var ErrAlreadyRunning = errors.New("trading loop already running")

// Loop 编排循环: 单一协作式控制流，周期之间检查停止请求
type Loop struct {
	engine        *Engine
	clock         Clock
	retry         RetryPolicy
	cycleInterval time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewLoop 初始化编排循环，重试策略与周期间隔取自配置
func NewLoop(e *Engine, clock Clock, logger *zap.Logger) *Loop {
	cfg := e.cfg.Execution
	return &Loop{
		engine: e,
		clock:  clock,
		retry: RetryPolicy{
			Delay:      time.Duration(cfg.RetryDelay * float64(time.Second)),
			MaxRetries: cfg.MaxRetries,
		},
		cycleInterval: time.Duration(cfg.CycleInterval * float64(time.Second)),
		logger:        logger,
	}
}

// Run 启动交易循环并阻塞至停止
// 周期内的失败被吸收并按重试策略退避；熔断触发时强制平仓后停机
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	l.logger.Info("Trading loop started",
		zap.Duration("cycle_interval", l.cycleInterval),
		zap.Duration("retry_delay", l.retry.Delay),
		zap.Int("max_retries", l.retry.MaxRetries))

	failures := 0
	for {
		if l.stopRequested(ctx) {
			return l.shutdown(ctx, "Stop requested")
		}

		if err := l.engine.RunCycle(ctx); err != nil {
			failures++
			l.logger.Error("Trading cycle failed",
				zap.Int("consecutive_failures", failures), zap.Error(err))
			if l.engine.metrics != nil {
				l.engine.metrics.CycleErrors.Inc()
			}
			if l.retry.MaxRetries > 0 && failures >= l.retry.MaxRetries {
				l.logger.Error("Retry budget exhausted, stopping loop")
				return l.shutdown(ctx, "Retry budget exhausted")
			}
			l.clock.Sleep(l.retry.Delay)
			continue
		}
		failures = 0

		// 风险监控: 回撤熔断对交易致命，对进程不致命
		if l.engine.DrawdownLimitReached() {
			l.logger.Error("Max drawdown limit breached, closing all positions and halting")
			return l.shutdown(ctx, "Drawdown limit breached")
		}

		l.clock.Sleep(l.cycleInterval)
	}
}

// Stop 请求停止，当前周期执行完后生效
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}

// Running 返回循环是否在运行
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) stopRequested(ctx context.Context) bool {
	select {
	case <-l.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// shutdown 有序退出: 平掉全部持仓后结束循环
func (l *Loop) shutdown(ctx context.Context, reason string) error {
	l.logger.Info("Trading loop shutting down", zap.String("reason", reason))
	// 外层 ctx 可能已取消，平仓用独立的短超时上下文
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := l.engine.CloseAllPositions(closeCtx); err != nil {
		l.logger.Error("Failed to close positions on shutdown", zap.Error(err))
		return err
	}
	l.logger.Info("Trading loop stopped")
	return nil
}
