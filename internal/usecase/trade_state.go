package usecase

import (
	"sync"
	"time"

	"github.com/vitos/cpr_daily_bot/internal/domain"
	"go.uber.org/zap"
)

// TradeBook is the single source of truth for the trade lifecycle. All
// reads and writes go through it, under one lock. No network I/O happens
// while the lock is held.
type TradeBook struct {
	mu       sync.Mutex
	state    domain.TradeState
	pending  *domain.PendingOrder
	position *domain.OpenPosition
	logger   *zap.Logger
}

// BookSnapshot is an immutable copy of the book for decision-making.
type BookSnapshot struct {
	State    domain.TradeState
	Pending  *domain.PendingOrder
	Position *domain.OpenPosition
}

func NewTradeBook(logger *zap.Logger) *TradeBook {
	return &TradeBook{
		state:  domain.StateFlat,
		logger: logger,
	}
}

func (b *TradeBook) Snapshot() BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BookSnapshot{State: b.state}
	if b.pending != nil {
		p := *b.pending
		snap.Pending = &p
	}
	if b.position != nil {
		pos := *b.position
		pos.ExitOrders = make(map[domain.ExitRole]string, len(b.position.ExitOrders))
		for role, id := range b.position.ExitOrders {
			pos.ExitOrders[role] = id
		}
		snap.Position = &pos
	}
	return snap
}

func (b *TradeBook) State() domain.TradeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// MarkPendingEntry records the submitted entry order and moves to
// PendingEntry.
func (b *TradeBook) MarkPendingEntry(order domain.PendingOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order.PlacedAt = time.Now().UTC()
	b.state = domain.StatePendingEntry
	b.pending = &order
	b.position = nil
}

// UpdatePendingStatus records the last known status of the entry order.
// Returns false if no pending order matches.
func (b *TradeBook) UpdatePendingStatus(orderID, status string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil || b.pending.OrderID != orderID {
		return false
	}
	b.pending.Status = status
	return true
}

// MarkConfirming moves PendingEntry to ConfirmingFill once a fill event was
// seen. The pending order stays tracked until the position is confirmed.
// Only the first fill event wins the transition; later ones (a partial fill
// followed by the full fill) must not schedule a second confirmation.
func (b *TradeBook) MarkConfirming(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != domain.StatePendingEntry || b.pending == nil || b.pending.OrderID != orderID {
		return false
	}
	b.state = domain.StateConfirmingFill
	return true
}

// MarkOpen installs the confirmed position. Both exit order ids must be
// present; a position without its exit orders never reaches Open.
func (b *TradeBook) MarkOpen(pos domain.OpenPosition) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pos.ExitOrders[domain.ExitTakeProfit] == "" || pos.ExitOrders[domain.ExitStopLoss] == "" {
		b.logger.Error("Refusing to mark position open without both exit orders")
		return false
	}
	b.state = domain.StateOpen
	b.position = &pos
	b.pending = nil
	return true
}

// MarkExiting flags that a terminal protocol is running.
func (b *TradeBook) MarkExiting() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = domain.StateExiting
}

// Reset forces the book back to Flat and clears all order and position
// fields. Safe to call from any state, any number of times.
func (b *TradeBook) Reset(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = domain.StateFlat
	b.pending = nil
	b.position = nil
	b.logger.Info("Trade state reset", zap.String("reason", reason))
}

// PendingOrderID returns the tracked entry order id, or "".
func (b *TradeBook) PendingOrderID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return ""
	}
	return b.pending.OrderID
}

// ExitOrderID returns the exit order id for the given role, or "".
func (b *TradeBook) ExitOrderID(role domain.ExitRole) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.position == nil {
		return ""
	}
	return b.position.ExitOrders[role]
}

// PositionQty returns the tracked open quantity, zero when flat.
func (b *TradeBook) PositionQty() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.position == nil {
		return 0
	}
	return b.position.Qty
}
