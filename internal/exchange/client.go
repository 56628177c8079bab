package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"kucoinmanager/pkg/ratelimit"
	"kucoinmanager/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	liveBaseURL    = "https://api-futures.kucoin.com"
	sandboxBaseURL = "https://api-sandbox-futures.kucoin.com"

	ordersPath         = "/api/v1/orders"
	openOrderStatsPath = "/api/v1/openOrderStatistics"

	// codeSuccess - единственный код тела ответа, означающий успех
	codeSuccess = "200000"

	// cannotCancelMsg - ответ биржи на отмену уже исполненного или отменённого
	// ордера. Для нас это успех: ордера на бирже нет.
	cannotCancelMsg = "The order cannot be canceled."

	// defaultRequestTimeout - таймаут одного запроса к бирже
	defaultRequestTimeout = 100 * time.Second
)

// ============================================================================
// ТИПЫ ЗАПРОСОВ И ОТВЕТОВ
// ============================================================================

// OrderParams - параметры размещения ордера на фьючерсном рынке
type OrderParams struct {
	Symbol    string // контракт, например "XBTUSDTM"
	Side      string // "buy" или "sell"
	Size      string // размер в лотах
	Price     string // цена лимитного ордера; пустая строка = market
	Leverage  int    // плечо
	ClientOid string // клиентский идентификатор, одинаков для всех попыток
}

// IsMarket сообщает, является ли ордер рыночным
func (p OrderParams) IsMarket() bool {
	return p.Price == ""
}

// OpenOrderStats - сводка по открытым ордерам аккаунта на символе
type OpenOrderStats struct {
	BuySize  int    `json:"openOrderBuySize"`
	SellSize int    `json:"openOrderSellSize"`
	BuyCost  string `json:"openOrderBuyCost"`
	SellCost string `json:"openOrderSellCost"`
	Currency string `json:"settleCurrency"`
}

// placeOrderRequest - тело POST /api/v1/orders. Leverage биржа принимает строкой.
type placeOrderRequest struct {
	ClientOid string `json:"clientOid"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Size      string `json:"size"`
	Price     string `json:"price,omitempty"`
	Leverage  string `json:"leverage"`
}

// envelope - общая обёртка всех ответов биржи
type envelope struct {
	Code string             `json:"code"`
	Msg  string             `json:"msg"`
	Data jsoniter.RawMessage `json:"data"`
}

// ============================================================================
// КЛИЕНТ
// ============================================================================

// Client - клиент фьючерсного API KuCoin для одного аккаунта.
// Все аккаунты делят один HTTPClient (connection pool) и один семафор,
// ограничивающий число одновременных запросов к бирже.
type Client struct {
	creds   Credentials
	baseURL string

	httpClient *HTTPClient
	limiter    *ratelimit.Semaphore
	timeout    time.Duration
	logger     *utils.Logger

	// now возвращает unix-миллисекунды; подменяется в тестах
	now func() int64
}

// ClientOption настраивает клиент при создании
type ClientOption func(*Client)

// WithBaseURL переопределяет адрес API (sandbox, httptest)
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout переопределяет таймаут одного запроса
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithClock переопределяет источник времени для подписи
func WithClock(now func() int64) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient создаёт клиент для аккаунта. sandbox переключает на тестовый
// контур биржи.
func NewClient(creds Credentials, sandbox bool, httpClient *HTTPClient, limiter *ratelimit.Semaphore, logger *utils.Logger, opts ...ClientOption) *Client {
	baseURL := liveBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}

	c := &Client{
		creds:      creds,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
		timeout:    defaultRequestTimeout,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do выполняет подписанный запрос к бирже и возвращает поле data ответа.
// Семафор удерживается только на время HTTP round trip: ожидание между
// повторными попытками не должно занимать слот.
func (c *Client) do(ctx context.Context, method, requestPath, body string) (jsoniter.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	// Подписывается путь вместе с query string
	for k, v := range BuildHeaders(c.creds, method, requestPath, body, c.now()) {
		req.Header.Set(k, v)
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire request slot: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	c.limiter.Release()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s %s: %w", method, requestPath, ErrRequestTimeout)
		}
		return nil, fmt.Errorf("%s %s: %w", method, requestPath, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: status=%d body=%q", ErrMalformedResponse, resp.StatusCode, truncate(raw, 200))
	}

	if resp.StatusCode != http.StatusOK || env.Code != codeSuccess {
		return nil, &ExchangeError{
			Status:  resp.StatusCode,
			Code:    env.Code,
			Message: env.Msg,
		}
	}

	// Отсутствие data при code=200000 - тоже успех
	return env.Data, nil
}

// truncate обрезает тело ответа для логов и сообщений об ошибках
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ============================================================================
// ОПЕРАЦИИ
// ============================================================================

// PlaceOrder размещает ордер и возвращает биржевой orderId.
// Пустая цена означает рыночный ордер.
func (c *Client) PlaceOrder(ctx context.Context, params OrderParams) (string, error) {
	orderType := "limit"
	if params.IsMarket() {
		orderType = "market"
	}

	reqBody := placeOrderRequest{
		ClientOid: params.ClientOid,
		Symbol:    params.Symbol,
		Side:      params.Side,
		Type:      orderType,
		Size:      params.Size,
		Price:     params.Price,
		Leverage:  strconv.Itoa(params.Leverage),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, ordersPath, string(body))
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%w: parse orderId: %v", ErrMalformedResponse, err)
	}

	c.logger.Debug("order placed",
		zap.String("symbol", params.Symbol),
		zap.String("side", params.Side),
		zap.String("order_id", result.OrderID),
	)

	return result.OrderID, nil
}

// CancelOrder отменяет ордер по биржевому orderId. Отмена идемпотентна:
// если биржа отвечает, что ордер уже нельзя отменить, считаем операцию
// успешной.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.do(ctx, http.MethodDelete, ordersPath+"/"+orderID, "")
	if err != nil {
		var exchErr *ExchangeError
		if errors.As(err, &exchErr) && exchErr.Message == cannotCancelMsg {
			c.logger.Debug("order already gone", zap.String("order_id", orderID))
			return nil
		}
		return err
	}
	return nil
}

// CancelAllOrders отменяет все открытые ордера на символе и возвращает
// их биржевые идентификаторы. Отмена идемпотентна так же, как CancelOrder.
// Если под нагрузкой биржа вернула HTML вместо JSON, отмена считается
// выполненной, но список идентификаторов недоступен.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) ([]string, error) {
	data, err := c.do(ctx, http.MethodDelete, ordersPath+"?symbol="+symbol, "")
	if err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			c.logger.Warn("cancel-all returned malformed body, assuming success",
				zap.String("symbol", symbol),
			)
			return nil, nil
		}
		var exchErr *ExchangeError
		if errors.As(err, &exchErr) && exchErr.Message == cannotCancelMsg {
			c.logger.Debug("orders already gone", zap.String("symbol", symbol))
			return nil, nil
		}
		return nil, err
	}

	var result struct {
		CancelledOrderIDs []string `json:"cancelledOrderIds"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, nil
	}
	return result.CancelledOrderIDs, nil
}

// GetOpenOrderStats возвращает сводку по открытым ордерам аккаунта на символе
func (c *Client) GetOpenOrderStats(ctx context.Context, symbol string) (*OpenOrderStats, error) {
	data, err := c.do(ctx, http.MethodGet, openOrderStatsPath+"?symbol="+symbol, "")
	if err != nil {
		return nil, err
	}

	var stats OpenOrderStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("%w: parse open order stats: %v", ErrMalformedResponse, err)
	}
	return &stats, nil
}
