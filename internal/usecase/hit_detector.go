package usecase

import (
	"context"
	"time"

	"github.com/vitos/cpr_daily_bot/internal/domain"
	"go.uber.org/zap"
)

// Dispatch delays keep the protocol handlers off the event-delivery
// goroutine while letting closely trailing duplicate events hit the
// already-claimed trigger.
const (
	orderHitDispatchDelay    = 500 * time.Millisecond
	positionHitDispatchDelay = 100 * time.Millisecond
)

// HitDetector classifies gateway push events into lifecycle triggers:
// entry filled, take-profit hit, stop-loss hit. Stop-loss has two
// independent detection paths (SL order fill, position size dropping to
// zero) which race; the one-shot trigger guarantees the protocol runs
// exactly once.
type HitDetector struct {
	symbol string
	orch   *Orchestrator
	runner *DeferredRunner
	logger *zap.Logger
}

func NewHitDetector(symbol string, orch *Orchestrator, runner *DeferredRunner, logger *zap.Logger) *HitDetector {
	return &HitDetector{
		symbol: symbol,
		orch:   orch,
		runner: runner,
		logger: logger,
	}
}

// Attach registers the detector on the gateway's event streams.
func (d *HitDetector) Attach(gateway domain.Gateway) {
	gateway.OnOrderUpdate(d.HandleOrderUpdate)
	gateway.OnPositionUpdate(d.HandlePositionUpdate)
}

// HandleOrderUpdate classifies one order stream event. Runs on the event
// delivery goroutine; anything heavier than a trigger claim is dispatched
// to the deferred runner.
func (d *HitDetector) HandleOrderUpdate(u domain.OrderUpdate) {
	if u.Symbol != "" && u.Symbol != d.symbol {
		return
	}
	if u.OrderID == "" || u.Status == "" {
		return
	}

	book := d.orch.Book()

	// Stop-loss via the SL exit order filling. Checked first: a filled
	// venue stop means the position is already gone.
	if u.OrderID == book.ExitOrderID(domain.ExitStopLoss) && domain.OrderStatusIsFilled(u.Status) {
		if d.orch.StopLossTrigger().TryClaim() {
			d.logger.Info("Stop-loss detected via order fill",
				zap.String("order_id", shortID(u.OrderID)),
				zap.String("status", u.Status))
			d.runner.After(orderHitDispatchDelay, func() {
				d.orch.HandleStopLoss(context.Background(), "order")
			})
		}
		return
	}

	// Pending entry order updates.
	if book.UpdatePendingStatus(u.OrderID, u.Status) {
		switch {
		case domain.OrderStatusIsFilled(u.Status) || u.CumQty > 0:
			d.logger.Info("Entry fill event",
				zap.String("order_id", shortID(u.OrderID)),
				zap.Float64("cum_qty", u.CumQty),
				zap.Float64("order_qty", u.Qty))
			d.orch.HandleEntryFill(u.OrderID, domain.OrderStatusIsFilled(u.Status))
		case domain.OrderStatusIsDead(u.Status):
			d.runner.Go(func() {
				d.orch.HandleEntryDead(u.OrderID, u.Status)
			})
		}
		return
	}

	// Take-profit exit order filling. TP only exists once a position is
	// open, so no cross-check against other signals is needed.
	if u.OrderID == book.ExitOrderID(domain.ExitTakeProfit) &&
		(domain.OrderStatusIsFilled(u.Status) || u.CumQty > 0) {
		if d.orch.TakeProfitTrigger().TryClaim() {
			d.logger.Info("Take-profit detected via order fill",
				zap.String("order_id", shortID(u.OrderID)),
				zap.Float64("cum_qty", u.CumQty))
			d.runner.After(orderHitDispatchDelay, func() {
				d.orch.HandleTakeProfit(context.Background(), "order")
			})
		}
	}
}

// HandlePositionUpdate is the backup stop-loss path: the tracked position's
// size dropping from a known non-zero quantity to zero while the state
// machine still believes the position is open. The venue is not guaranteed
// to emit the order-fill event for the stop, so either path may be the only
// one to observe the close.
func (d *HitDetector) HandlePositionUpdate(u domain.PositionUpdate) {
	if u.Symbol != d.symbol {
		return
	}

	book := d.orch.Book()
	if book.State() != domain.StateOpen {
		return
	}
	expected := book.PositionQty()
	if expected <= 0 {
		return
	}
	// A fully closed merged position can arrive with a side other than Buy
	// ("None", size 0), so zero sizes count regardless of the reported
	// side. Non-zero sizes mean the position is still open.
	if u.Size != 0 {
		return
	}

	if d.orch.StopLossTrigger().TryClaim() {
		d.logger.Info("Stop-loss detected via position update",
			zap.Float64("expected_qty", expected))
		d.runner.After(positionHitDispatchDelay, func() {
			d.orch.HandleStopLoss(context.Background(), "position")
		})
	}
}
