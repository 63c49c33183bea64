package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/cpr_daily_bot/internal/domain"
	"github.com/vitos/cpr_daily_bot/internal/usecase"
	"go.uber.org/zap"
)

func newBook() *usecase.TradeBook {
	return usecase.NewTradeBook(zap.NewNop())
}

func TestTradeBook_Lifecycle(t *testing.T) {
	book := newBook()
	assert.Equal(t, domain.StateFlat, book.State())

	book.MarkPendingEntry(domain.PendingOrder{
		OrderID:    "e1",
		Side:       domain.SideBuy,
		Qty:        0.5,
		LimitPrice: 100,
	})
	assert.Equal(t, domain.StatePendingEntry, book.State())
	assert.Equal(t, "e1", book.PendingOrderID())

	assert.True(t, book.MarkConfirming("e1"))
	assert.Equal(t, domain.StateConfirmingFill, book.State())
	// The pending order stays tracked until the position is confirmed.
	assert.Equal(t, "e1", book.PendingOrderID())

	ok := book.MarkOpen(domain.OpenPosition{
		EntryPrice: 100,
		Qty:        0.5,
		TakeProfit: 100.7,
		StopLoss:   95,
		ExitOrders: map[domain.ExitRole]string{
			domain.ExitTakeProfit: "tp1",
			domain.ExitStopLoss:   "sl1",
		},
	})
	assert.True(t, ok)
	assert.Equal(t, domain.StateOpen, book.State())
	assert.Equal(t, "", book.PendingOrderID())
	assert.Equal(t, "tp1", book.ExitOrderID(domain.ExitTakeProfit))
	assert.Equal(t, "sl1", book.ExitOrderID(domain.ExitStopLoss))
	assert.Equal(t, 0.5, book.PositionQty())

	book.MarkExiting()
	assert.Equal(t, domain.StateExiting, book.State())

	book.Reset("test")
	assert.Equal(t, domain.StateFlat, book.State())
	assert.Equal(t, 0.0, book.PositionQty())
	assert.Equal(t, "", book.ExitOrderID(domain.ExitStopLoss))
}

func TestTradeBook_MarkOpenRequiresBothExitOrders(t *testing.T) {
	cases := []struct {
		name  string
		exits map[domain.ExitRole]string
	}{
		{"missing sl", map[domain.ExitRole]string{domain.ExitTakeProfit: "tp1"}},
		{"missing tp", map[domain.ExitRole]string{domain.ExitStopLoss: "sl1"}},
		{"empty", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			book := newBook()
			book.MarkPendingEntry(domain.PendingOrder{OrderID: "e1"})
			book.MarkConfirming("e1")

			ok := book.MarkOpen(domain.OpenPosition{Qty: 1, ExitOrders: tc.exits})
			assert.False(t, ok)
			assert.NotEqual(t, domain.StateOpen, book.State())
		})
	}
}

func TestTradeBook_MarkConfirmingWrongOrder(t *testing.T) {
	book := newBook()
	book.MarkPendingEntry(domain.PendingOrder{OrderID: "e1"})

	assert.False(t, book.MarkConfirming("other"))
	assert.Equal(t, domain.StatePendingEntry, book.State())
}

func TestTradeBook_MarkConfirmingOnlyOnce(t *testing.T) {
	book := newBook()
	book.MarkPendingEntry(domain.PendingOrder{OrderID: "e1"})

	assert.True(t, book.MarkConfirming("e1"))
	// Repeated fill reports for the same order must not win again.
	assert.False(t, book.MarkConfirming("e1"))
	assert.Equal(t, domain.StateConfirmingFill, book.State())
}

func TestTradeBook_UpdatePendingStatus(t *testing.T) {
	book := newBook()
	book.MarkPendingEntry(domain.PendingOrder{OrderID: "e1", Status: domain.OrderStatusNew})

	assert.True(t, book.UpdatePendingStatus("e1", domain.OrderStatusPartiallyFilled))
	assert.False(t, book.UpdatePendingStatus("unknown", domain.OrderStatusFilled))

	snap := book.Snapshot()
	assert.Equal(t, domain.OrderStatusPartiallyFilled, snap.Pending.Status)
}

func TestTradeBook_SnapshotIsACopy(t *testing.T) {
	book := newBook()
	book.MarkPendingEntry(domain.PendingOrder{OrderID: "e1"})
	book.MarkConfirming("e1")
	book.MarkOpen(domain.OpenPosition{
		Qty: 1,
		ExitOrders: map[domain.ExitRole]string{
			domain.ExitTakeProfit: "tp1",
			domain.ExitStopLoss:   "sl1",
		},
	})

	snap := book.Snapshot()
	snap.Position.ExitOrders[domain.ExitTakeProfit] = "mutated"

	assert.Equal(t, "tp1", book.ExitOrderID(domain.ExitTakeProfit))
}
