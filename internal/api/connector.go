// Package api 行情接入
package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crypto-perp-trader/internal/model"
	"crypto-perp-trader/internal/service"
)

// bookTickerData Binance bookTicker 频道的数据结构
type bookTickerData struct {
	Symbol  string `json:"s"`
	BestBid string `json:"b"`
	BestAsk string `json:"a"`
}

// Connector 订阅交易对的实时最优买卖价并输出 Ticker 流
type Connector struct {
	wsURL      string
	symbol     string
	tickerChan chan model.Ticker
	done       chan struct{}
	logger     *zap.Logger
}

// NewConnector 初始化行情连接器
func NewConnector(wsURL, symbol string, logger *zap.Logger) *Connector {
	return &Connector{
		wsURL: wsURL,
		// 确保通道有足够的缓冲区来应对高频数据
		tickerChan: make(chan model.Ticker, 2048),
		done:       make(chan struct{}),
		symbol:     symbol,
		logger:     logger.With(zap.String("component", "connector")),
	}
}

// Start 建立 WebSocket 连接并启动读循环，连接断开后等待重连
func (c *Connector) Start() error {
	conn, err := c.connect()
	if err != nil {
		return err
	}

	go c.readLoop(conn)
	return nil
}

// Stop 关闭连接器，读循环随之退出
func (c *Connector) Stop() {
	close(c.done)
}

func (c *Connector) connect() (*websocket.Conn, error) {
	c.logger.Info("Connecting ticker stream", zap.String("url", c.wsURL))

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial ticker stream: %w", err)
	}

	streamName := fmt.Sprintf("%s@bookTicker", strings.ToLower(c.symbol))
	subscribeMsg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{streamName},
		"id":     1,
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", streamName, err)
	}

	c.logger.Info("Subscribed ticker stream", zap.String("stream", streamName))
	return conn, nil
}

// readLoop 持续读取 WS 消息并转换为内部 Ticker
func (c *Connector) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			c.logger.Error("Ticker stream read error, reconnecting", zap.Error(err))
			time.Sleep(5 * time.Second)
			next, dialErr := c.connect()
			if dialErr != nil {
				c.logger.Error("Reconnect failed", zap.Error(dialErr))
				continue
			}
			conn.Close()
			conn = next
			continue
		}

		var data bookTickerData
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}
		if data.BestBid == "" || data.BestAsk == "" {
			continue // 订阅确认等非行情消息
		}

		bid, err := service.StringToFloat(data.BestBid)
		if err != nil {
			continue
		}
		ask, err := service.StringToFloat(data.BestAsk)
		if err != nil {
			continue
		}

		ticker := model.Ticker{
			Symbol:    c.symbol,
			Timestamp: time.Now().UnixMilli(),
			Price:     (bid + ask) / 2,
		}

		// 使用 select/default 防止阻塞读循环
		select {
		case c.tickerChan <- ticker:
		default:
			c.logger.Warn("Ticker channel full, dropping tick", zap.String("symbol", c.symbol))
		}
	}
}

// Tickers 返回行情输出通道
func (c *Connector) Tickers() <-chan model.Ticker {
	return c.tickerChan
}
