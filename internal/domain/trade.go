package domain

import "time"

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// TradeState is the lifecycle phase of the single tracked trade.
type TradeState string

const (
	StateFlat           TradeState = "FLAT"
	StatePendingEntry   TradeState = "PENDING_ENTRY"
	StateConfirmingFill TradeState = "CONFIRMING_FILL"
	StateOpen           TradeState = "OPEN"
	StateExiting        TradeState = "EXITING"
)

// ExitRole identifies an exit order attached to an open position.
type ExitRole string

const (
	ExitTakeProfit ExitRole = "tp"
	ExitStopLoss   ExitRole = "sl"
)

// PendingOrder tracks the entry limit order between placement and fill.
type PendingOrder struct {
	OrderID    string
	Side       Side
	Qty        float64
	LimitPrice float64
	StopPrice  float64
	ReducedTP  bool
	Status     string
	PlacedAt   time.Time
}

// OpenPosition is populated only after the fill was confirmed against the
// exchange's position record, never from a push event alone.
type OpenPosition struct {
	EntryPrice float64
	Qty        float64
	TakeProfit float64
	StopLoss   float64
	ExitOrders map[ExitRole]string
}

// Position is the exchange's view of a position, as returned by the
// positions query.
type Position struct {
	Symbol        string
	Side          Side
	Size          float64
	AvgEntryPrice float64
}

// AccountSnapshot holds the last known balances. It is informational; any
// sizing decision re-queries the gateway first.
type AccountSnapshot struct {
	Total     float64
	Available float64
	UpdatedAt time.Time
}

// ProductInfo is the contract metadata fetched at startup. Missing metadata
// is a fatal configuration error.
type ProductInfo struct {
	Symbol         string
	PricePrecision int
	QtyPrecision   int
	PriceTickSize  float64
	QtyStepSize    float64
	ContractSize   float64
	MinLeverage    int
	MaxLeverage    int
}

// TradeRecord is one persisted lifecycle event, kept for manual
// reconciliation.
type TradeRecord struct {
	ID        int64
	Symbol    string
	Event     string
	OrderID   string
	Side      Side
	Qty       float64
	Price     float64
	Note      string
	CreatedAt time.Time
}

const (
	TradeEventEntryPlaced   = "entry_placed"
	TradeEventEntryFilled   = "entry_filled"
	TradeEventExitPlaced    = "exit_placed"
	TradeEventTakeProfit    = "take_profit"
	TradeEventStopLoss      = "stop_loss"
	TradeEventEndOfDay      = "end_of_day"
	TradeEventManualExit    = "manual_exit"
	TradeEventCompensated   = "compensating_close"
	TradeEventReset         = "reset"
	TradeEventEntryCanceled = "entry_canceled"
)
