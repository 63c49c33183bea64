package usecase_test

import (
	"testing"

	"github.com/vitos/cpr_daily_bot/internal/domain"
	"github.com/vitos/cpr_daily_bot/internal/usecase"
	"go.uber.org/zap"
)

func newTestDetector(t *testing.T, gateway *MockGateway) (*usecase.HitDetector, *usecase.Orchestrator, *usecase.DeferredRunner) {
	t.Helper()
	orch, runner := newTestOrchestrator(t, gateway, nil)
	detector := usecase.NewHitDetector("BTCUSDT", orch, runner, zap.NewNop())
	return detector, orch, runner
}

func TestHitDetector_EntryFillRunsConfirmation(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Positions = []domain.Position{
		{Symbol: "BTCUSDT", Side: domain.SideBuy, Size: 0.5, AvgEntryPrice: 100},
	}
	detector, orch, runner := newTestDetector(t, gateway)
	orch.Book().MarkPendingEntry(domain.PendingOrder{OrderID: "e1", Side: domain.SideBuy, Qty: 0.5})

	detector.HandleOrderUpdate(domain.OrderUpdate{
		OrderID: "e1",
		Symbol:  "BTCUSDT",
		Status:  domain.OrderStatusFilled,
		CumQty:  0.5,
		Qty:     0.5,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateOpen {
		t.Errorf("state = %v, want Open after confirmed fill", orch.Book().State())
	}
}

func TestHitDetector_EntryCancelResets(t *testing.T) {
	gateway := NewMockGateway()
	detector, orch, runner := newTestDetector(t, gateway)
	orch.Book().MarkPendingEntry(domain.PendingOrder{OrderID: "e1"})

	detector.HandleOrderUpdate(domain.OrderUpdate{
		OrderID: "e1",
		Symbol:  "BTCUSDT",
		Status:  domain.OrderStatusCanceled,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateFlat {
		t.Errorf("state = %v, want Flat after cancel", orch.Book().State())
	}
}

func TestHitDetector_TakeProfitViaOrderFill(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Positions = nil // TP fill closed the whole position
	detector, orch, runner := newTestDetector(t, gateway)
	openBook(orch)

	detector.HandleOrderUpdate(domain.OrderUpdate{
		OrderID: "tp1",
		Symbol:  "BTCUSDT",
		Status:  domain.OrderStatusFilled,
		CumQty:  0.5,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateFlat {
		t.Errorf("state = %v, want Flat after take profit", orch.Book().State())
	}
	if len(gateway.PlacedByType("Market")) != 0 {
		t.Error("fully closed position needs no market close")
	}
	if len(gateway.BulkCancels) < 2 {
		t.Error("cleanup sweep should bulk-cancel both order classes")
	}
}

func TestHitDetector_StopLossViaOrderFill(t *testing.T) {
	gateway := NewMockGateway()
	detector, orch, runner := newTestDetector(t, gateway)
	openBook(orch)

	detector.HandleOrderUpdate(domain.OrderUpdate{
		OrderID: "sl1",
		Symbol:  "BTCUSDT",
		Status:  domain.OrderStatusFilled,
		CumQty:  0.5,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateFlat {
		t.Errorf("state = %v, want Flat after stop loss", orch.Book().State())
	}
}

func TestHitDetector_StopLossViaPositionDrop(t *testing.T) {
	gateway := NewMockGateway()
	detector, orch, runner := newTestDetector(t, gateway)
	openBook(orch)

	// No order-fill event arrives; only the position stream reports zero.
	detector.HandlePositionUpdate(domain.PositionUpdate{
		Symbol: "BTCUSDT",
		Side:   domain.SideBuy,
		Size:   0,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateFlat {
		t.Errorf("state = %v, want Flat after position-drop stop loss", orch.Book().State())
	}
}

func TestHitDetector_StopLossViaClosedPositionSideNone(t *testing.T) {
	gateway := NewMockGateway()
	detector, orch, runner := newTestDetector(t, gateway)
	openBook(orch)

	// The venue reports a fully closed merged position with side "None"
	// and size zero, not with the Buy side it had while open.
	detector.HandlePositionUpdate(domain.PositionUpdate{
		Symbol: "BTCUSDT",
		Side:   domain.Side("None"),
		Size:   0,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateFlat {
		t.Errorf("state = %v, want Flat: side None close event must trigger the backup path", orch.Book().State())
	}
}

func TestHitDetector_DualSourceStopLossRunsOnce(t *testing.T) {
	gateway := NewMockGateway()
	// A residue remains, so every protocol run would market-close it. One
	// close means the protocol ran exactly once.
	gateway.Positions = []domain.Position{
		{Symbol: "BTCUSDT", Side: domain.SideBuy, Size: 0.2, AvgEntryPrice: 100},
	}
	detector, orch, runner := newTestDetector(t, gateway)
	openBook(orch)

	detector.HandleOrderUpdate(domain.OrderUpdate{
		OrderID: "sl1",
		Symbol:  "BTCUSDT",
		Status:  domain.OrderStatusFilled,
		CumQty:  0.5,
	})
	detector.HandlePositionUpdate(domain.PositionUpdate{
		Symbol: "BTCUSDT",
		Side:   domain.SideBuy,
		Size:   0,
	})
	runner.Wait()

	markets := gateway.PlacedByType("Market")
	if len(markets) != 1 {
		t.Errorf("placed %d market orders, want exactly 1: both detection paths fired", len(markets))
	}
	if orch.Book().State() != domain.StateFlat {
		t.Errorf("state = %v, want Flat", orch.Book().State())
	}
}

func TestHitDetector_IgnoresOtherSymbols(t *testing.T) {
	gateway := NewMockGateway()
	detector, orch, runner := newTestDetector(t, gateway)
	openBook(orch)

	detector.HandleOrderUpdate(domain.OrderUpdate{
		OrderID: "sl1",
		Symbol:  "ETHUSDT",
		Status:  domain.OrderStatusFilled,
	})
	detector.HandlePositionUpdate(domain.PositionUpdate{
		Symbol: "ETHUSDT",
		Side:   domain.SideBuy,
		Size:   0,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateOpen {
		t.Errorf("state = %v, want Open: foreign symbol events must be ignored", orch.Book().State())
	}
}

func TestHitDetector_PositionDropIgnoredWhenNotOpen(t *testing.T) {
	gateway := NewMockGateway()
	detector, orch, runner := newTestDetector(t, gateway)
	orch.Book().MarkPendingEntry(domain.PendingOrder{OrderID: "e1"})

	detector.HandlePositionUpdate(domain.PositionUpdate{
		Symbol: "BTCUSDT",
		Side:   domain.SideBuy,
		Size:   0,
	})
	runner.Wait()

	if orch.Book().State() != domain.StatePendingEntry {
		t.Errorf("state = %v, want PendingEntry untouched", orch.Book().State())
	}
	if orch.StopLossTrigger().Fired() {
		t.Error("trigger must not fire while no position is open")
	}
}

func TestHitDetector_PartialEntryFillStillConfirms(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Positions = []domain.Position{
		{Symbol: "BTCUSDT", Side: domain.SideBuy, Size: 0.3, AvgEntryPrice: 100},
	}
	detector, orch, runner := newTestDetector(t, gateway)
	orch.Book().MarkPendingEntry(domain.PendingOrder{OrderID: "e1", Side: domain.SideBuy, Qty: 0.5})

	detector.HandleOrderUpdate(domain.OrderUpdate{
		OrderID: "e1",
		Symbol:  "BTCUSDT",
		Status:  domain.OrderStatusPartiallyFilled,
		CumQty:  0.3,
		Qty:     0.5,
	})
	runner.Wait()

	if orch.Book().State() != domain.StateOpen {
		t.Errorf("state = %v, want Open", orch.Book().State())
	}
	// Exit orders cover the confirmed quantity, not the requested one.
	limits := gateway.PlacedByType("Limit")
	if len(limits) != 1 || limits[0].Qty != 0.3 {
		t.Errorf("tp should cover the confirmed 0.3, got %+v", limits)
	}
}
