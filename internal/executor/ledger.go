package executor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

// simLedger 虚拟资金账本，模拟与混合后端共用
// 订单立即成交；保证金按 数量*价格*杠杆 占用可用余额
type simLedger struct {
	mu sync.RWMutex

	balance          float64
	availableBalance float64
	leverage         int
	fees             service.FeesConfig

	position    *model.Position
	orders      []*model.Order
	trades      []*model.TradeRecord
	nextOrderID int64

	logger *zap.Logger
}

func newSimLedger(initialBalance float64, leverage int, fees service.FeesConfig, logger *zap.Logger) *simLedger {
	return &simLedger{
		balance:          initialBalance,
		availableBalance: initialBalance,
		leverage:         leverage,
		fees:             fees,
		nextOrderID:      time.Now().UnixMilli(),
		logger:           logger,
	}
}

func (l *simLedger) balances() (float64, float64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance, l.availableBalance
}

// positionSnapshot 返回持仓副本，空仓时返回 nil
func (l *simLedger) positionSnapshot() *model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.position.IsFlat() {
		return nil
	}
	p := *l.position
	return &p
}

// fill 以给定价格立即成交一笔订单并更新账本
func (l *simLedger) fill(req OrderRequest, price float64) (*model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lev := float64(l.leverage)
	orderValue := req.Quantity * price * lev

	// 开仓需要足够的可用余额；平仓释放保证金，不检查
	if !req.ReduceOnly && orderValue > l.availableBalance {
		l.logger.Warn("Order rejected: insufficient funds",
			zap.Float64("required", orderValue),
			zap.Float64("available", l.availableBalance))
		return nil, ErrInsufficientFunds
	}

	if l.position == nil {
		l.position = &model.Position{Symbol: req.Symbol, Side: model.PosFlat, Leverage: l.leverage}
	}
	pos := l.position

	// 先结算反向持仓: 反向成交总是先全部平掉现有仓位
	if req.Side == model.SideBuy && pos.Side == model.PosShort ||
		req.Side == model.SideSell && pos.Side == model.PosLong {
		l.availableBalance += pos.Quantity * price * lev
		pos.Quantity = 0
		pos.Side = model.PosFlat
	}

	// reduce-only 订单到此为止，不再开新仓
	if !req.ReduceOnly {
		if req.Side == model.SideBuy {
			pos.Side = model.PosLong
		} else {
			pos.Side = model.PosShort
		}
		pos.Quantity += req.Quantity
		pos.EntryPrice = price // 同向加仓覆盖为最新成交价
		l.availableBalance -= orderValue
	}

	l.nextOrderID++
	order := &model.Order{
		ID:            l.nextOrderID,
		ClientOrderID: uuid.NewString(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         price,
		Status:        model.StatusFilled,
		ReduceOnly:    req.ReduceOnly,
		UpdateTime:    time.Now().UnixMilli(),
	}
	l.orders = append(l.orders, order)

	feeRate := l.fees.Taker
	if req.Type == model.TypeLimit {
		feeRate = l.fees.Maker
	}
	l.trades = append(l.trades, &model.TradeRecord{
		Timestamp: time.Now(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     price,
		OrderID:   order.ID,
		Fee:       orderValue * feeRate,
	})

	l.logger.Info("Simulated order filled",
		zap.Int64("order_id", order.ID),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("price", price),
		zap.Float64("available_balance", l.availableBalance))

	return order, nil
}

func (l *simLedger) findOrder(orderID int64) (*model.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, o := range l.orders {
		if o.ID == orderID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

// cancelOrder 模拟环境下订单立即成交，撤单仅返回 CANCELED 状态
func (l *simLedger) cancelOrder(orderID int64) (*model.Order, error) {
	order, err := l.findOrder(orderID)
	if err != nil {
		return nil, err
	}
	order.Status = model.StatusCanceled
	return order, nil
}
