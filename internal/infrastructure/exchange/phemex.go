package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/cpr_daily_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	PhemexBaseURL = "https://api.phemex.com"
	PhemexWSURL   = "wss://ws.phemex.com"

	wsAuthID          = 12345
	wsHeartbeatPeriod = 30 * time.Second
	wsReconnectDelay  = 5 * time.Second

	// Phemex "already filled/cancelled" code; cancel treats it as success.
	codeOrderAlreadyClosed = 10002
)

var klineResolutions = map[string]int64{
	"1m": 60, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "4h": 14400, "1d": 86400,
}

// PhemexAdapter talks to Phemex linear perpetuals: signed REST calls plus
// the authenticated push stream for order, position and account events.
type PhemexAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	mu           sync.Mutex
	wsConn       *websocket.Conn
	subscribed   [][]byte // raw subscribe frames, replayed on reconnect
	closed       bool
	orderCbs     []func(domain.OrderUpdate)
	positionCbs  []func(domain.PositionUpdate)
	accountCbs   []func(domain.AccountUpdate)
	klineCbs     []func(symbol, interval string, candles []domain.Candle)
	authenticated chan struct{}
}

func NewPhemexAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *PhemexAdapter {
	if baseURL == "" {
		baseURL = PhemexBaseURL
	}
	if wsURL == "" {
		wsURL = PhemexWSURL
	}
	return &PhemexAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
	}
}

// --- REST API ---

// sign builds the request signature over path + canonical query + expiry +
// body, per the venue's signing scheme.
func (p *PhemexAdapter) sign(path, query string, expiry int64, body []byte) string {
	msg := path + query + strconv.FormatInt(expiry, 10) + string(body)
	h := hmac.New(sha256.New, []byte(p.apiSecret))
	h.Write([]byte(msg))
	return hex.EncodeToString(h.Sum(nil))
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (p *PhemexAdapter) sendRequest(ctx context.Context, method, path string, params map[string]string, payload interface{}) (*apiResponse, error) {
	var query string
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+params[k])
		}
		query = strings.Join(parts, "&")
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	reqURL := p.baseURL + path
	if query != "" {
		// Query values do not need escaping here (symbols, order ids), but
		// keep the URL well-formed.
		if u, err := url.Parse(reqURL); err == nil {
			u.RawQuery = query
			reqURL = u.String()
		}
	}

	expiry := time.Now().Unix() + 60
	signature := p.sign(path, query, expiry, body)

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-phemex-access-token", p.apiKey)
	req.Header.Set("x-phemex-request-expiry", strconv.FormatInt(expiry, 10))
	req.Header.Set("x-phemex-request-signature", signature)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.TransportError{
			Op:  method + " " + path,
			Err: fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respBody, 200)),
		}
	}

	var out apiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("malformed response for %s %s: %w", method, path, err)
	}
	return &out, nil
}

func (p *PhemexAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	body := map[string]interface{}{
		"symbol":     req.Symbol,
		"side":       string(req.Side),
		"orderQtyRq": strconv.FormatFloat(req.Qty, 'f', -1, 64),
		"ordType":    req.Type,
		"posSide":    "Merged",
		"reduceOnly": req.ReduceOnly,
	}
	if req.TimeInForce != "" {
		body["timeInForce"] = req.TimeInForce
	}
	if req.ClientID != "" {
		body["clOrdID"] = req.ClientID
	}
	switch req.Type {
	case "Limit":
		body["priceRp"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	case "Stop":
		body["stopPxRp"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		body["triggerType"] = "ByLastPrice"
	}

	resp, err := p.sendRequest(ctx, http.MethodPost, "/g-orders", nil, body)
	if err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", &domain.VenueRejection{Op: "place order", Code: resp.Code, Msg: resp.Msg}
	}

	var data struct {
		OrderID string `json:"orderID"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.OrderID == "" {
		return "", &domain.VenueRejection{Op: "place order", Code: resp.Code, Msg: "missing orderID in response"}
	}
	return data.OrderID, nil
}

// CancelOrder cancels one order. An order that is already filled or
// cancelled counts as success.
func (p *PhemexAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]string{"symbol": symbol, "orderID": orderID}
	resp, err := p.sendRequest(ctx, http.MethodDelete, "/g-orders/cancel", params, nil)
	if err != nil {
		return err
	}
	if resp.Code == 0 || resp.Code == codeOrderAlreadyClosed {
		return nil
	}
	return &domain.VenueRejection{Op: "cancel order", Code: resp.Code, Msg: resp.Msg}
}

func (p *PhemexAdapter) CancelAllOrders(ctx context.Context, symbol string, untriggered bool) error {
	params := map[string]string{
		"symbol":      symbol,
		"untriggered": strconv.FormatBool(untriggered),
	}
	resp, err := p.sendRequest(ctx, http.MethodDelete, "/g-orders/all", params, nil)
	if err != nil {
		return err
	}
	if resp.Code != 0 {
		// "Nothing to cancel" is fine.
		p.logger.Debug("Cancel-all response non-zero",
			zap.Int("code", resp.Code), zap.String("msg", resp.Msg))
	}
	return nil
}

type rawPositionsData struct {
	Account *struct {
		AccountBalanceRv   string `json:"accountBalanceRv"`
		TotalUsedBalanceRv string `json:"totalUsedBalanceRv"`
	} `json:"account"`
	Positions []struct {
		Symbol          string `json:"symbol"`
		Side            string `json:"side"`
		SizeRv          string `json:"sizeRv"`
		AvgEntryPriceRv string `json:"avgEntryPriceRv"`
	} `json:"positions"`
}

func (p *PhemexAdapter) queryAccountPositions(ctx context.Context, currency string) (*rawPositionsData, error) {
	params := map[string]string{"currency": currency}
	resp, err := p.sendRequest(ctx, http.MethodGet, "/g-accounts/positions", params, nil)
	if err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &domain.VenueRejection{Op: "query positions", Code: resp.Code, Msg: resp.Msg}
	}

	var data rawPositionsData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("malformed positions payload: %w", err)
	}
	return &data, nil
}

func (p *PhemexAdapter) QueryPositions(ctx context.Context, currency string) ([]domain.Position, error) {
	data, err := p.queryAccountPositions(ctx, currency)
	if err != nil {
		return nil, err
	}

	var positions []domain.Position
	for _, raw := range data.Positions {
		size := parseFloat(raw.SizeRv)
		if size == 0 {
			continue
		}
		positions = append(positions, domain.Position{
			Symbol:        raw.Symbol,
			Side:          domain.Side(raw.Side),
			Size:          size,
			AvgEntryPrice: parseFloat(raw.AvgEntryPriceRv),
		})
	}
	return positions, nil
}

func (p *PhemexAdapter) QueryBalance(ctx context.Context, currency string) (domain.AccountSnapshot, error) {
	data, err := p.queryAccountPositions(ctx, currency)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	if data.Account == nil {
		return domain.AccountSnapshot{}, &domain.StateInconsistency{
			Op:     "query balance",
			Detail: "account details missing from positions payload",
		}
	}

	total := parseFloat(data.Account.AccountBalanceRv)
	used := parseFloat(data.Account.TotalUsedBalanceRv)
	available := total - used
	if available < 0 {
		available = 0
	}
	return domain.AccountSnapshot{Total: total, Available: available}, nil
}

func (p *PhemexAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	}
	resp, err := p.sendRequest(ctx, http.MethodPut, "/g-positions/leverage", params, nil)
	if err != nil {
		return err
	}
	if resp.Code != 0 {
		return &domain.VenueRejection{Op: "set leverage", Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

func (p *PhemexAdapter) FetchProductInfo(ctx context.Context, symbol string) (*domain.ProductInfo, error) {
	resp, err := p.sendRequest(ctx, http.MethodGet, "/public/products", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &domain.VenueRejection{Op: "fetch products", Code: resp.Code, Msg: resp.Msg}
	}

	var data struct {
		PerpProductsV2 []struct {
			Symbol         string  `json:"symbol"`
			PricePrecision *int    `json:"pricePrecision"`
			QtyPrecision   *int    `json:"qtyPrecision"`
			ContractSize   string  `json:"contractSize"`
			MaxLeverage    float64 `json:"maxLeverage"`
		} `json:"perpProductsV2"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("malformed products payload: %w", err)
	}

	for _, product := range data.PerpProductsV2 {
		if product.Symbol != symbol {
			continue
		}
		if product.PricePrecision == nil || product.QtyPrecision == nil {
			return nil, &domain.ConfigurationError{
				Detail: "product " + symbol + " missing price/qty precision",
			}
		}

		info := &domain.ProductInfo{
			Symbol:         symbol,
			PricePrecision: *product.PricePrecision,
			QtyPrecision:   *product.QtyPrecision,
			PriceTickSize:  1 / math.Pow10(*product.PricePrecision),
			QtyStepSize:    1 / math.Pow10(*product.QtyPrecision),
			ContractSize:   1,
			MinLeverage:    1,
			MaxLeverage:    100,
		}
		if cs := parseFloat(product.ContractSize); cs > 0 {
			info.ContractSize = cs
		}
		if product.MaxLeverage > 0 {
			info.MaxLeverage = int(product.MaxLeverage)
		}
		return info, nil
	}
	return nil, &domain.ConfigurationError{Detail: "product " + symbol + " not found"}
}

// GetTicker returns the last traded price. The market-data endpoints use a
// different envelope than the trading API.
func (p *PhemexAdapter) GetTicker(ctx context.Context, symbol string) (float64, error) {
	reqURL := p.baseURL + "/md/v3/ticker/24hr?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &domain.TransportError{Op: "GET ticker", Err: err}
	}
	defer resp.Body.Close()

	var out struct {
		Result struct {
			LastRp string `json:"lastRp"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("malformed ticker payload: %w", err)
	}

	price := parseFloat(out.Result.LastRp)
	if price <= 0 {
		return 0, &domain.StateInconsistency{
			Op:     "get ticker",
			Detail: "no last price for " + symbol,
		}
	}
	return price, nil
}

func (p *PhemexAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	resolution, ok := klineResolutions[interval]
	if !ok {
		return nil, fmt.Errorf("unsupported kline interval %q", interval)
	}

	to := time.Now().Unix()
	from := to - int64(limit)*resolution

	params := map[string]string{
		"symbol":     symbol,
		"resolution": strconv.FormatInt(resolution, 10),
		"from":       strconv.FormatInt(from, 10),
		"to":         strconv.FormatInt(to, 10),
	}
	resp, err := p.sendRequest(ctx, http.MethodGet, "/exchange/public/md/v2/kline/list", params, nil)
	if err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &domain.VenueRejection{Op: "fetch klines", Code: resp.Code, Msg: resp.Msg}
	}

	var data struct {
		Rows [][]json.Number `json:"rows"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("malformed kline payload: %w", err)
	}

	candles := parseKlineRows(data.Rows)
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	return candles, nil
}

// Kline row layout: [timestamp, resolution, lastClose, open, high, low,
// close, volume, turnover].
func parseKlineRows(rows [][]json.Number) []domain.Candle {
	var candles []domain.Candle
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		ts, err := row[0].Int64()
		if err != nil {
			continue
		}
		c := domain.Candle{
			Time:   ts,
			Open:   numFloat(row[3]),
			High:   numFloat(row[4]),
			Low:    numFloat(row[5]),
			Close:  numFloat(row[6]),
			Volume: numFloat(row[7]),
		}
		if c.Low > c.High {
			continue
		}
		candles = append(candles, c)
	}
	return candles
}

// --- WebSocket ---

func (p *PhemexAdapter) OnOrderUpdate(callback func(domain.OrderUpdate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderCbs = append(p.orderCbs, callback)
}

func (p *PhemexAdapter) OnPositionUpdate(callback func(domain.PositionUpdate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionCbs = append(p.positionCbs, callback)
}

func (p *PhemexAdapter) OnAccountUpdate(callback func(domain.AccountUpdate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountCbs = append(p.accountCbs, callback)
}

func (p *PhemexAdapter) OnKline(callback func(symbol, interval string, candles []domain.Candle)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.klineCbs = append(p.klineCbs, callback)
}

// Connect dials the stream, authenticates, replays subscriptions and spawns
// the read and heartbeat loops. On a read failure the connection is torn
// down and re-established with a short backoff until Close or ctx ends the
// session; subscriptions do not survive a venue session, so they are
// re-issued every time.
func (p *PhemexAdapter) Connect(ctx context.Context) error {
	if err := p.dial(ctx); err != nil {
		return err
	}
	go p.reconnectLoop(ctx)
	return nil
}

func (p *PhemexAdapter) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		return &domain.TransportError{Op: "ws dial", Err: err}
	}

	p.mu.Lock()
	p.wsConn = conn
	p.authenticated = make(chan struct{})
	frames := make([][]byte, len(p.subscribed))
	copy(frames, p.subscribed)
	p.mu.Unlock()

	go p.readLoop(conn)

	if err := p.authenticate(conn); err != nil {
		conn.Close()
		return err
	}

	for _, frame := range frames {
		if err := p.send(frame); err != nil {
			conn.Close()
			return err
		}
	}

	p.logger.Info("Event stream connected", zap.Int("subscriptions", len(frames)))
	go p.heartbeatLoop(ctx, conn)
	return nil
}

func (p *PhemexAdapter) authenticate(conn *websocket.Conn) error {
	expiry := time.Now().Unix() + 60
	h := hmac.New(sha256.New, []byte(p.apiSecret))
	h.Write([]byte(p.apiKey + strconv.FormatInt(expiry, 10)))
	signature := hex.EncodeToString(h.Sum(nil))

	frame, _ := json.Marshal(map[string]interface{}{
		"method": "user.auth",
		"params": []interface{}{"API", p.apiKey, signature, expiry},
		"id":     wsAuthID,
	})
	if err := p.send(frame); err != nil {
		return err
	}

	p.mu.Lock()
	authed := p.authenticated
	p.mu.Unlock()

	select {
	case <-authed:
		return nil
	case <-time.After(10 * time.Second):
		return &domain.TransportError{Op: "ws auth", Err: fmt.Errorf("authentication timeout")}
	}
}

// SubscribeAccount subscribes to the combined order/position/account topic.
func (p *PhemexAdapter) SubscribeAccount() error {
	frame, _ := json.Marshal(map[string]interface{}{
		"method": "aop_p.subscribe",
		"params": []interface{}{},
		"id":     100,
	})
	return p.subscribeFrame(frame)
}

// SubscribeKlines subscribes to the kline topic for symbol at interval.
func (p *PhemexAdapter) SubscribeKlines(symbol, interval string) error {
	resolution, ok := klineResolutions[interval]
	if !ok {
		return fmt.Errorf("unsupported kline interval %q", interval)
	}
	frame, _ := json.Marshal(map[string]interface{}{
		"method": "kline_p.subscribe",
		"params": []interface{}{symbol, resolution},
		"id":     200,
	})
	return p.subscribeFrame(frame)
}

func (p *PhemexAdapter) subscribeFrame(frame []byte) error {
	p.mu.Lock()
	p.subscribed = append(p.subscribed, frame)
	connected := p.wsConn != nil
	p.mu.Unlock()

	if !connected {
		return nil // replayed on connect
	}
	return p.send(frame)
}

// send serializes writes; reconnection must not race an in-flight send.
func (p *PhemexAdapter) send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wsConn == nil {
		return &domain.TransportError{Op: "ws send", Err: fmt.Errorf("not connected")}
	}
	if err := p.wsConn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return &domain.TransportError{Op: "ws send", Err: err}
	}
	return nil
}

func (p *PhemexAdapter) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsHeartbeatPeriod)
	defer ticker.Stop()

	frame, _ := json.Marshal(map[string]interface{}{
		"method": "server.ping",
		"params": []interface{}{},
		"id":     99,
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			current := p.wsConn
			p.mu.Unlock()
			if current != conn {
				return // connection was replaced
			}
			if err := p.send(frame); err != nil {
				return
			}
		}
	}
}

func (p *PhemexAdapter) reconnectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}

		p.mu.Lock()
		closed := p.closed
		connected := p.wsConn != nil
		p.mu.Unlock()

		if closed {
			return
		}
		if connected {
			continue
		}

		p.logger.Warn("Event stream down, reconnecting")
		if err := p.dial(ctx); err != nil {
			p.logger.Error("Reconnect failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wsReconnectDelay):
			}
		}
	}
}

func (p *PhemexAdapter) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		p.mu.Lock()
		if p.wsConn == conn {
			p.wsConn = nil
		}
		p.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			p.logger.Warn("Event stream read error", zap.Error(err))
			return
		}
		p.handleMessage(message)
	}
}

func (p *PhemexAdapter) handleMessage(message []byte) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if raw, ok := msg["result"]; ok {
		p.handleControlMessage(msg, raw)
		return
	}

	if raw, ok := msg["orders_p"]; ok {
		p.handleOrders(raw)
	}
	if raw, ok := msg["positions_p"]; ok {
		p.handlePositions(raw)
	}
	if raw, ok := msg["accounts_p"]; ok {
		p.handleAccounts(raw)
	}
	if raw, ok := msg["kline_p"]; ok {
		p.handleKlines(msg, raw)
	}
}

func (p *PhemexAdapter) handleControlMessage(msg map[string]json.RawMessage, result json.RawMessage) {
	var id int
	if raw, ok := msg["id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}

	var pong string
	if json.Unmarshal(result, &pong) == nil && pong == "pong" {
		return
	}

	var status struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(result, &status)

	if id == wsAuthID {
		if status.Status == "success" {
			p.logger.Info("Event stream authenticated")
			p.mu.Lock()
			select {
			case <-p.authenticated:
			default:
				close(p.authenticated)
			}
			p.mu.Unlock()
		} else {
			p.logger.Error("Event stream authentication failed")
		}
		return
	}
	p.logger.Debug("Subscription acknowledged", zap.Int("id", id))
}

type rawOrderEvent struct {
	OrderID    string `json:"orderID"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	OrdStatus  string `json:"ordStatus"`
	CumQtyRq   string `json:"cumQtyRq"`
	OrderQtyRq string `json:"orderQtyRq"`
}

func (p *PhemexAdapter) handleOrders(raw json.RawMessage) {
	var events []rawOrderEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		var single rawOrderEvent
		if json.Unmarshal(raw, &single) != nil {
			return
		}
		events = []rawOrderEvent{single}
	}

	p.mu.Lock()
	cbs := make([]func(domain.OrderUpdate), len(p.orderCbs))
	copy(cbs, p.orderCbs)
	p.mu.Unlock()

	for _, ev := range events {
		if ev.OrderID == "" || ev.OrdStatus == "" {
			continue
		}
		update := domain.OrderUpdate{
			OrderID: ev.OrderID,
			Symbol:  ev.Symbol,
			Side:    domain.Side(ev.Side),
			Status:  ev.OrdStatus,
			CumQty:  parseFloat(ev.CumQtyRq),
			Qty:     parseFloat(ev.OrderQtyRq),
		}
		for _, cb := range cbs {
			cb(update)
		}
	}
}

type rawPositionEvent struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	SizeRv string `json:"sizeRv"`
}

func (p *PhemexAdapter) handlePositions(raw json.RawMessage) {
	var events []rawPositionEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		var single rawPositionEvent
		if json.Unmarshal(raw, &single) != nil {
			return
		}
		events = []rawPositionEvent{single}
	}

	p.mu.Lock()
	cbs := make([]func(domain.PositionUpdate), len(p.positionCbs))
	copy(cbs, p.positionCbs)
	p.mu.Unlock()

	for _, ev := range events {
		if ev.Symbol == "" {
			continue
		}
		update := domain.PositionUpdate{
			Symbol: ev.Symbol,
			Side:   domain.Side(ev.Side),
			Size:   parseFloat(ev.SizeRv),
		}
		for _, cb := range cbs {
			cb(update)
		}
	}
}

type rawAccountEvent struct {
	Currency           string `json:"currency"`
	AccountBalanceRv   string `json:"accountBalanceRv"`
	TotalUsedBalanceRv string `json:"totalUsedBalanceRv"`
}

func (p *PhemexAdapter) handleAccounts(raw json.RawMessage) {
	var events []rawAccountEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		var single rawAccountEvent
		if json.Unmarshal(raw, &single) != nil {
			return
		}
		events = []rawAccountEvent{single}
	}

	p.mu.Lock()
	cbs := make([]func(domain.AccountUpdate), len(p.accountCbs))
	copy(cbs, p.accountCbs)
	p.mu.Unlock()

	for _, ev := range events {
		total := parseFloat(ev.AccountBalanceRv)
		used := parseFloat(ev.TotalUsedBalanceRv)
		available := total - used
		if available < 0 {
			available = 0
		}
		update := domain.AccountUpdate{
			Currency:  ev.Currency,
			Total:     total,
			Available: available,
		}
		for _, cb := range cbs {
			cb(update)
		}
	}
}

func (p *PhemexAdapter) handleKlines(msg map[string]json.RawMessage, raw json.RawMessage) {
	var symbol string
	if rawSym, ok := msg["symbol"]; ok {
		_ = json.Unmarshal(rawSym, &symbol)
	}
	if symbol == "" {
		return
	}

	var rows [][]json.Number
	if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
		return
	}

	resolution, err := rows[0][1].Int64()
	if err != nil {
		return
	}
	interval := ""
	for name, sec := range klineResolutions {
		if sec == resolution {
			interval = name
			break
		}
	}
	if interval == "" {
		return
	}

	candles := parseKlineRows(rows)
	if len(candles) == 0 {
		return
	}

	p.mu.Lock()
	cbs := make([]func(string, string, []domain.Candle), len(p.klineCbs))
	copy(cbs, p.klineCbs)
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(symbol, interval, candles)
	}
}

// Close tears the stream down for good; the reconnect loop exits.
func (p *PhemexAdapter) Close() error {
	p.mu.Lock()
	p.closed = true
	conn := p.wsConn
	p.wsConn = nil
	p.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func numFloat(n json.Number) float64 {
	v, err := n.Float64()
	if err != nil {
		return 0
	}
	return v
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
