package executor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

// BinanceBackend 实盘后端: 币安 U 本位合约 REST API
// 限流、断线重连等传输层细节不在本层处理
type BinanceBackend struct {
	cfg        *service.Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBinanceBackend 构造实盘后端
func NewBinanceBackend(cfg *service.Config, logger *zap.Logger) *BinanceBackend {
	return &BinanceBackend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(zap.String("backend", "live")),
	}
}

// Initialize 校验 API 连通性
func (b *BinanceBackend) Initialize(ctx context.Context) error {
	if _, err := b.GetTickerPrice(ctx, b.cfg.Trading.Symbol); err != nil {
		return fmt.Errorf("binance connectivity check: %w", err)
	}
	b.logger.Info("Binance backend initialized", zap.String("rest_url", b.cfg.Exchange.RESTURL))
	return nil
}

func (b *BinanceBackend) Close() error { return nil }

// sign 对 query string 做 HMAC-SHA256 签名
func (b *BinanceBackend) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.cfg.Exchange.APISecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// apiError 币安的错误响应体
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// 币安错误码
const (
	codeInsufficientMargin = -2019
	codeOrderNotExist      = -2013
)

// request 发送请求；signed 为 true 时附加时间戳与签名
func (b *BinanceBackend) request(ctx context.Context, method, endpoint string, params url.Values, signed bool, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		params.Set("signature", b.sign(params.Encode()))
	}

	reqURL := b.cfg.Exchange.RESTURL + endpoint
	var body io.Reader
	if method == http.MethodGet {
		reqURL += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if b.cfg.Exchange.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", b.cfg.Exchange.APIKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil {
			switch apiErr.Code {
			case codeInsufficientMargin:
				return ErrInsufficientFunds
			case codeOrderNotExist:
				return ErrOrderNotFound
			}
			return fmt.Errorf("binance api %s: %d %s", endpoint, apiErr.Code, apiErr.Msg)
		}
		return fmt.Errorf("binance api %s: http %d", endpoint, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// GetCandles 拉取历史 K 线
// 币安返回混合类型数组: [openTime, open, high, low, close, volume, closeTime, ...]
func (b *BinanceBackend) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]json.RawMessage
	if err := b.request(ctx, http.MethodGet, "/fapi/v1/klines", params, false, &raw); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		var openTime, closeTime int64
		var o, h, l, c, v string
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		json.Unmarshal(row[1], &o)
		json.Unmarshal(row[2], &h)
		json.Unmarshal(row[3], &l)
		json.Unmarshal(row[4], &c)
		json.Unmarshal(row[5], &v)
		json.Unmarshal(row[6], &closeTime)

		open, _ := service.StringToFloat(o)
		high, _ := service.StringToFloat(h)
		low, _ := service.StringToFloat(l)
		cls, _ := service.StringToFloat(c)
		vol, _ := service.StringToFloat(v)

		candles = append(candles, model.Candle{
			OpenTime:  time.UnixMilli(openTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    vol,
			CloseTime: time.UnixMilli(closeTime),
		})
	}
	return candles, nil
}

func (b *BinanceBackend) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Price string `json:"price"`
	}
	if err := b.request(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false, &resp); err != nil {
		return 0, err
	}
	return service.StringToFloat(resp.Price)
}

// GetAccountBalance 返回 USDT 资产的钱包余额与可用余额
func (b *BinanceBackend) GetAccountBalance(ctx context.Context) (float64, float64, error) {
	var assets []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := b.request(ctx, http.MethodGet, "/fapi/v2/balance", nil, true, &assets); err != nil {
		return 0, 0, err
	}
	for _, a := range assets {
		if a.Asset == "USDT" {
			balance, err := service.StringToFloat(a.Balance)
			if err != nil {
				return 0, 0, err
			}
			available, err := service.StringToFloat(a.AvailableBalance)
			if err != nil {
				return 0, 0, err
			}
			return balance, available, nil
		}
	}
	return 0, 0, fmt.Errorf("no USDT asset in balance response")
}

// GetPosition 查询持仓风险接口，positionAmt 为 0 时视为空仓返回 nil
func (b *BinanceBackend) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var positions []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
		Leverage    string `json:"leverage"`
	}
	if err := b.request(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true, &positions); err != nil {
		return nil, err
	}

	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		amt, err := service.StringToFloat(p.PositionAmt)
		if err != nil || amt == 0 {
			continue
		}
		entry, _ := service.StringToFloat(p.EntryPrice)
		lev, _ := service.StringToInt64(p.Leverage)

		side := model.PosLong
		if amt < 0 {
			side = model.PosShort
			amt = -amt
		}
		return &model.Position{
			Symbol:     symbol,
			Side:       side,
			Quantity:   amt,
			EntryPrice: entry,
			Leverage:   int(lev),
		}, nil
	}
	return nil, nil
}

// binanceOrder 订单接口的响应体
type binanceOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigQty       string `json:"origQty"`
	AvgPrice      string `json:"avgPrice"`
	Price         string `json:"price"`
	Status        string `json:"status"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

func (b *BinanceBackend) toOrder(o binanceOrder) *model.Order {
	qty, _ := service.StringToFloat(o.OrigQty)
	price, _ := service.StringToFloat(o.AvgPrice)
	if price == 0 {
		price, _ = service.StringToFloat(o.Price)
	}
	return &model.Order{
		ID:            o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          model.OrderSide(o.Side),
		Type:          model.OrderType(o.Type),
		Quantity:      qty,
		Price:         price,
		Status:        model.OrderStatus(o.Status),
		ReduceOnly:    o.ReduceOnly,
		UpdateTime:    o.UpdateTime,
	}
}

// PlaceOrder 下市价/限价单
// 实盘订单可能返回非终态 (NEW)，引擎按 pending 处理
func (b *BinanceBackend) PlaceOrder(ctx context.Context, req OrderRequest) (*model.Order, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	params.Set("newClientOrderId", uuid.NewString())
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp binanceOrder
	if err := b.request(ctx, http.MethodPost, "/fapi/v1/order", params, true, &resp); err != nil {
		return nil, err
	}

	order := b.toOrder(resp)
	b.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
		zap.String("status", string(order.Status)))
	return order, nil
}

func (b *BinanceBackend) CancelOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	var resp binanceOrder
	if err := b.request(ctx, http.MethodDelete, "/fapi/v1/order", params, true, &resp); err != nil {
		return nil, err
	}
	return b.toOrder(resp), nil
}

func (b *BinanceBackend) GetOrder(ctx context.Context, symbol string, orderID int64) (*model.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	var resp binanceOrder
	if err := b.request(ctx, http.MethodGet, "/fapi/v1/order", params, true, &resp); err != nil {
		return nil, err
	}
	return b.toOrder(resp), nil
}
