package domain

import "context"

// OrderRequest is the gateway-level order placement payload.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Qty         float64
	Price       float64 // limit price, or trigger price for stop orders
	Type        string  // "Limit", "Market", "Stop"
	TimeInForce string
	ReduceOnly  bool
	ClientID    string
}

// Gateway defines the interface to the exchange: signed REST calls plus an
// authenticated push event stream.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string, untriggered bool) error
	QueryPositions(ctx context.Context, currency string) ([]Position, error)
	QueryBalance(ctx context.Context, currency string) (AccountSnapshot, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	FetchProductInfo(ctx context.Context, symbol string) (*ProductInfo, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	OnOrderUpdate(callback func(OrderUpdate))
	OnPositionUpdate(callback func(PositionUpdate))
	OnAccountUpdate(callback func(AccountUpdate))
	OnKline(callback func(symbol, interval string, candles []Candle))

	Connect(ctx context.Context) error
	Close() error
}

// SignalProvider supplies the daily pivot range and moving averages computed
// from OHLC history.
type SignalProvider interface {
	LatestSignals(ctx context.Context, symbol string) (*Signals, error)
}

// TradeRepository defines storage for lifecycle events.
type TradeRepository interface {
	SaveTradeRecord(ctx context.Context, rec *TradeRecord) error
	ListTradeRecords(ctx context.Context, limit int) ([]*TradeRecord, error)
}
