package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/cpr_daily_bot/internal/domain"
	"go.uber.org/zap"
)

// StrategyConfig carries the trading parameters of the daily CPR strategy.
type StrategyConfig struct {
	Symbol           string
	Currency         string
	RiskPercent      float64
	Leverage         int
	SLPercent        float64
	TPPercent        float64
	TPPercentReduced float64
	MinOrderQty      float64

	// ForceEntry skips the entry-condition check. Rehearsal only.
	ForceEntry bool

	ConfirmDelayFull    time.Duration
	ConfirmDelayPartial time.Duration
	ConfirmRetries      int
	ConfirmBackoff      time.Duration
	SettleWait          time.Duration
	ActionTimeout       time.Duration
	ShutdownCloseWait   time.Duration
}

// Orchestrator drives the trade lifecycle state machine: entry placement,
// the confirm-fill saga, exit order placement with compensating cleanup,
// and the terminal exit protocols.
type Orchestrator struct {
	cfg      StrategyConfig
	gateway  domain.Gateway
	signals  domain.SignalProvider
	accounts *AccountService
	book     *TradeBook
	repo     domain.TradeRepository
	runner   *DeferredRunner
	logger   *zap.Logger

	product *domain.ProductInfo

	tpTrigger *OneShotTrigger
	slTrigger *OneShotTrigger
}

func NewOrchestrator(
	cfg StrategyConfig,
	gateway domain.Gateway,
	signals domain.SignalProvider,
	accounts *AccountService,
	book *TradeBook,
	repo domain.TradeRepository,
	runner *DeferredRunner,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		gateway:   gateway,
		signals:   signals,
		accounts:  accounts,
		book:      book,
		repo:      repo,
		runner:    runner,
		logger:    logger,
		tpTrigger: NewOneShotTrigger(),
		slTrigger: NewOneShotTrigger(),
	}
}

// Book exposes the shared trade state for the detector and web layer.
func (o *Orchestrator) Book() *TradeBook { return o.book }

// TakeProfitTrigger is the one-shot gate for the TP protocol.
func (o *Orchestrator) TakeProfitTrigger() *OneShotTrigger { return o.tpTrigger }

// StopLossTrigger is the one-shot gate for the SL protocol.
func (o *Orchestrator) StopLossTrigger() *OneShotTrigger { return o.slTrigger }

// Init fetches product metadata and sets leverage. Missing metadata is
// fatal; a leverage failure is logged and tolerated.
func (o *Orchestrator) Init(ctx context.Context) error {
	product, err := o.gateway.FetchProductInfo(ctx, o.cfg.Symbol)
	if err != nil {
		return &domain.ConfigurationError{
			Detail: fmt.Sprintf("product info for %s unavailable: %v", o.cfg.Symbol, err),
		}
	}
	o.product = product

	leverage := o.cfg.Leverage
	if product.MinLeverage > 0 && leverage < product.MinLeverage {
		o.logger.Warn("Clamping leverage to product minimum",
			zap.Int("requested", leverage), zap.Int("min", product.MinLeverage))
		leverage = product.MinLeverage
	}
	if product.MaxLeverage > 0 && leverage > product.MaxLeverage {
		o.logger.Warn("Clamping leverage to product maximum",
			zap.Int("requested", leverage), zap.Int("max", product.MaxLeverage))
		leverage = product.MaxLeverage
	}

	if err := o.gateway.SetLeverage(ctx, o.cfg.Symbol, leverage); err != nil {
		o.logger.Warn("Failed to set leverage, continuing", zap.Error(err))
	}
	return nil
}

// CheckEntry runs the daily entry check: evaluate signals, size the
// position against a fresh balance and submit the limit entry at the pivot
// top.
func (o *Orchestrator) CheckEntry(ctx context.Context) {
	snap := o.book.Snapshot()
	if snap.State != domain.StateFlat {
		o.logger.Info("Entry check skipped: not flat", zap.String("state", string(snap.State)))
		return
	}

	signals, err := o.signals.LatestSignals(ctx, o.cfg.Symbol)
	if err != nil {
		o.logger.Error("Entry check aborted: signals unavailable", zap.Error(err))
		return
	}

	ok, limitPrice, reducedTP := o.EvaluateEntry(signals)
	if !ok {
		return
	}

	balance, err := o.accounts.Refresh(ctx)
	if err != nil {
		o.logger.Error("Entry aborted: balance query failed", zap.Error(err))
		return
	}

	qty := o.PositionSize(limitPrice, balance.Available)
	if qty == 0 {
		o.logger.Error("Entry aborted: position size is zero",
			zap.Float64("available", balance.Available),
			zap.Float64("price", limitPrice))
		return
	}

	slPrice := o.roundPrice(limitPrice * (1 - o.cfg.SLPercent/100.0))

	o.logger.Info("Placing entry order",
		zap.String("symbol", o.cfg.Symbol),
		zap.Float64("limit_price", limitPrice),
		zap.Float64("stop_price", slPrice),
		zap.Float64("qty", qty),
		zap.Bool("reduced_tp", reducedTP))

	actx, cancel := o.actionContext(ctx)
	defer cancel()

	orderID, err := o.gateway.PlaceOrder(actx, domain.OrderRequest{
		Symbol:      o.cfg.Symbol,
		Side:        domain.SideBuy,
		Qty:         qty,
		Price:       limitPrice,
		Type:        "Limit",
		TimeInForce: "GoodTillCancel",
		ClientID:    uuid.NewString(),
	})
	if err != nil {
		o.logger.Error("Entry order placement failed", zap.Error(err))
		return
	}
	mtxOrders.WithLabelValues("entry").Inc()

	o.book.MarkPendingEntry(domain.PendingOrder{
		OrderID:    orderID,
		Side:       domain.SideBuy,
		Qty:        qty,
		LimitPrice: limitPrice,
		StopPrice:  slPrice,
		ReducedTP:  reducedTP,
		Status:     domain.OrderStatusNew,
	})
	o.record(ctx, domain.TradeEventEntryPlaced, orderID, domain.SideBuy, qty, limitPrice, "limit at pivot top")
}

// EvaluateEntry applies the entry condition: the daily open must be
// strictly above the pivot top. A bearish MA cross does not block the
// entry, it only reduces the profit target.
func (o *Orchestrator) EvaluateEntry(signals *domain.Signals) (ok bool, limitPrice float64, reducedTP bool) {
	if o.cfg.ForceEntry {
		o.logger.Warn("Entry condition check forced to pass")
		return true, o.roundPrice(signals.PivotTop), signals.FastMA < signals.SlowMA
	}

	if signals.DailyOpen <= signals.PivotTop {
		o.logger.Info("Entry check failed: open not above pivot top",
			zap.Float64("open", signals.DailyOpen),
			zap.Float64("pivot_top", signals.PivotTop))
		return false, 0, false
	}

	reducedTP = signals.FastMA > 0 && signals.SlowMA > 0 && signals.FastMA < signals.SlowMA
	o.logger.Info("Entry check passed",
		zap.Float64("open", signals.DailyOpen),
		zap.Float64("pivot_top", signals.PivotTop),
		zap.Float64("fast_ma", signals.FastMA),
		zap.Float64("slow_ma", signals.SlowMA),
		zap.Bool("reduced_tp", reducedTP))
	return true, o.roundPrice(signals.PivotTop), reducedTP
}

// HandleEntryFill is invoked by the hit detector once the entry order
// reports a non-zero cumulative quantity. The push payload is not trusted:
// a delayed re-check against the authoritative position record follows.
func (o *Orchestrator) HandleEntryFill(orderID string, fullFill bool) {
	if !o.book.MarkConfirming(orderID) {
		return
	}

	delay := o.cfg.ConfirmDelayFull
	if !fullFill {
		delay = o.cfg.ConfirmDelayPartial
	}
	o.logger.Info("Entry fill reported, scheduling confirmation",
		zap.String("order_id", shortID(orderID)),
		zap.Bool("full_fill", fullFill),
		zap.Duration("delay", delay))

	o.runner.After(delay, func() {
		o.ConfirmFill(context.Background(), orderID)
	})
}

// HandleEntryDead clears the pending entry after a cancel or rejection.
func (o *Orchestrator) HandleEntryDead(orderID, status string) {
	snap := o.book.Snapshot()
	if snap.Pending == nil || snap.Pending.OrderID != orderID || snap.State == domain.StateOpen {
		return
	}
	o.logger.Info("Entry order dead, resetting",
		zap.String("order_id", shortID(orderID)),
		zap.String("status", status))
	o.record(context.Background(), domain.TradeEventEntryCanceled, orderID, domain.SideBuy, 0, 0, status)
	o.book.Reset("entry order " + status)
}

// ConfirmFill re-queries the authoritative position record and, once
// confirmed, runs the exit-order saga: place TP, then SL, and fall back to
// a compensating market close if either placement fails.
func (o *Orchestrator) ConfirmFill(ctx context.Context, orderID string) {
	snap := o.book.Snapshot()
	if snap.State != domain.StateConfirmingFill || snap.Pending == nil || snap.Pending.OrderID != orderID {
		return
	}
	reducedTP := snap.Pending.ReducedTP

	pos, err := o.findPosition(ctx, domain.SideBuy)
	if err != nil {
		o.logger.Error("CRITICAL: could not confirm position, leaving for end-of-day sweep",
			zap.String("order_id", shortID(orderID)),
			zap.Error(err))
		return
	}

	tpPrice, slPrice := o.ExitPrices(pos.AvgEntryPrice, reducedTP)

	o.logger.Info("Position confirmed",
		zap.Float64("entry_price", pos.AvgEntryPrice),
		zap.Float64("qty", pos.Size),
		zap.Float64("take_profit", tpPrice),
		zap.Float64("stop_loss", slPrice),
		zap.Bool("reduced_tp", reducedTP))
	o.record(ctx, domain.TradeEventEntryFilled, orderID, domain.SideBuy, pos.Size, pos.AvgEntryPrice, "")

	exitOrders := make(map[domain.ExitRole]string, 2)

	actx, cancel := o.actionContext(ctx)
	defer cancel()

	tpID, err := o.gateway.PlaceOrder(actx, domain.OrderRequest{
		Symbol:      o.cfg.Symbol,
		Side:        domain.SideSell,
		Qty:         pos.Size,
		Price:       tpPrice,
		Type:        "Limit",
		TimeInForce: "GoodTillCancel",
		ReduceOnly:  true,
		ClientID:    uuid.NewString(),
	})
	if err != nil {
		o.logger.Error("CRITICAL: TP order failed, closing position", zap.Error(err))
		o.compensateClose(ctx, pos.Size, "take-profit placement failed")
		return
	}
	mtxOrders.WithLabelValues("take_profit").Inc()
	exitOrders[domain.ExitTakeProfit] = tpID
	o.record(ctx, domain.TradeEventExitPlaced, tpID, domain.SideSell, pos.Size, tpPrice, "tp limit")

	slID, err := o.gateway.PlaceOrder(actx, domain.OrderRequest{
		Symbol:      o.cfg.Symbol,
		Side:        domain.SideSell,
		Qty:         pos.Size,
		Price:       slPrice,
		Type:        "Stop",
		TimeInForce: "GoodTillCancel",
		ReduceOnly:  true,
		ClientID:    uuid.NewString(),
	})
	if err != nil {
		o.logger.Error("CRITICAL: SL order failed, closing position", zap.Error(err))
		if cerr := o.gateway.CancelOrder(actx, o.cfg.Symbol, tpID); cerr != nil {
			o.logger.Warn("Failed to cancel TP during compensation", zap.Error(cerr))
		}
		o.compensateClose(ctx, pos.Size, "stop-loss placement failed")
		return
	}
	mtxOrders.WithLabelValues("stop_loss").Inc()
	exitOrders[domain.ExitStopLoss] = slID
	o.record(ctx, domain.TradeEventExitPlaced, slID, domain.SideSell, pos.Size, slPrice, "sl stop")

	o.tpTrigger.Reset()
	o.slTrigger.Reset()

	if !o.book.MarkOpen(domain.OpenPosition{
		EntryPrice: pos.AvgEntryPrice,
		Qty:        pos.Size,
		TakeProfit: tpPrice,
		StopLoss:   slPrice,
		ExitOrders: exitOrders,
	}) {
		o.compensateClose(ctx, pos.Size, "inconsistent exit orders")
		return
	}

	if _, err := o.accounts.Refresh(ctx); err != nil {
		o.logger.Warn("Balance refresh after open failed", zap.Error(err))
	}
}

// findPosition queries positions with bounded retries. The position may not
// be visible immediately after the fill event arrives.
func (o *Orchestrator) findPosition(ctx context.Context, side domain.Side) (*domain.Position, error) {
	retries := o.cfg.ConfirmRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.ConfirmBackoff * time.Duration(attempt)):
			}
		}

		actx, cancel := o.actionContext(ctx)
		positions, err := o.gateway.QueryPositions(actx, o.cfg.Currency)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		for i := range positions {
			p := positions[i]
			if p.Symbol == o.cfg.Symbol && p.Side == side && p.Size > 0 && p.AvgEntryPrice > 0 {
				return &p, nil
			}
		}
		lastErr = &domain.StateInconsistency{
			Op:     "confirm fill",
			Detail: "position not visible yet",
		}
	}
	return nil, lastErr
}

// compensateClose market-closes qty and runs the full cleanup. Used when
// the exit-order saga fails partway.
func (o *Orchestrator) compensateClose(ctx context.Context, qty float64, reason string) {
	o.book.MarkExiting()

	actx, cancel := o.actionContext(ctx)
	defer cancel()

	_, err := o.gateway.PlaceOrder(actx, domain.OrderRequest{
		Symbol:     o.cfg.Symbol,
		Side:       domain.SideSell,
		Qty:        qty,
		Type:       "Market",
		ReduceOnly: true,
		ClientID:   uuid.NewString(),
	})
	if err != nil {
		o.logger.Error("Compensating market close may have failed",
			zap.String("reason", reason), zap.Error(err))
	} else {
		mtxOrders.WithLabelValues("market_close").Inc()
	}
	o.record(ctx, domain.TradeEventCompensated, "", domain.SideSell, qty, 0, reason)
	o.CancelAllAndReset(ctx, "compensating close: "+reason)
}

// HandleTakeProfit runs the TP protocol: cancel any leftover entry order,
// wait a settle window, re-query the position and market-close residual
// quantity from a partial fill.
func (o *Orchestrator) HandleTakeProfit(ctx context.Context, path string) {
	o.logger.Info("Take-profit protocol started", zap.String("path", path))
	mtxTriggers.WithLabelValues("take_profit", path).Inc()
	o.book.MarkExiting()

	o.cancelPendingEntry(ctx)
	o.closeResidual(ctx, "take profit")
	o.record(ctx, domain.TradeEventTakeProfit, "", domain.SideSell, 0, 0, path)
	o.CancelAllAndReset(ctx, "take profit hit via "+path)
}

// HandleStopLoss runs the SL protocol. The venue-side stop normally closes
// the position itself, but the same residue check as TP runs anyway in case
// the stop filled partially.
func (o *Orchestrator) HandleStopLoss(ctx context.Context, path string) {
	o.logger.Info("Stop-loss protocol started", zap.String("path", path))
	mtxTriggers.WithLabelValues("stop_loss", path).Inc()
	o.book.MarkExiting()

	o.cancelPendingEntry(ctx)
	o.closeResidual(ctx, "stop loss")
	o.record(ctx, domain.TradeEventStopLoss, "", domain.SideSell, 0, 0, path)
	o.CancelAllAndReset(ctx, "stop loss hit via "+path)
}

// HandleEndOfDay unconditionally flattens: market-close any open position
// on either side, cancel the entry order and bulk-cancel everything left.
func (o *Orchestrator) HandleEndOfDay(ctx context.Context) {
	o.logger.Info("End-of-day exit triggered")
	mtxTriggers.WithLabelValues("end_of_day", "schedule").Inc()
	o.book.MarkExiting()

	actx, cancel := o.actionContext(ctx)
	positions, err := o.gateway.QueryPositions(actx, o.cfg.Currency)
	cancel()
	if err != nil {
		o.logger.Error("EOD position query failed, continuing with cleanup", zap.Error(err))
	}
	for _, pos := range positions {
		if pos.Symbol != o.cfg.Symbol || pos.Size <= 0 {
			continue
		}
		closeSide := domain.SideSell
		if pos.Side == domain.SideSell {
			closeSide = domain.SideBuy
		}
		o.logger.Info("EOD closing open position",
			zap.String("side", string(pos.Side)),
			zap.Float64("qty", pos.Size))
		o.marketClose(ctx, closeSide, pos.Size)
	}

	o.cancelPendingEntry(ctx)
	o.record(ctx, domain.TradeEventEndOfDay, "", "", 0, 0, "")
	o.CancelAllAndReset(ctx, "end of day exit")
}

// ExecuteExit is the manual/shutdown exit: cancel exit orders, market-close
// the known quantity and clean up. The caller bounds the wait via ctx.
func (o *Orchestrator) ExecuteExit(ctx context.Context, reason string) {
	snap := o.book.Snapshot()
	if snap.Position == nil || snap.Position.Qty <= 0 {
		o.logger.Info("Manual exit skipped: no tracked position", zap.String("reason", reason))
		return
	}
	o.logger.Info("Manual exit", zap.String("reason", reason), zap.Float64("qty", snap.Position.Qty))
	o.book.MarkExiting()

	actx, cancel := o.actionContext(ctx)
	for _, orderID := range snap.Position.ExitOrders {
		if orderID == "" {
			continue
		}
		if err := o.gateway.CancelOrder(actx, o.cfg.Symbol, orderID); err != nil {
			o.logger.Warn("Exit order cancel failed, continuing",
				zap.String("order_id", shortID(orderID)), zap.Error(err))
		}
	}
	cancel()

	o.marketClose(ctx, domain.SideSell, snap.Position.Qty)
	o.record(ctx, domain.TradeEventManualExit, "", domain.SideSell, snap.Position.Qty, 0, reason)
	o.CancelAllAndReset(ctx, reason)
}

// Shutdown runs the final sweep: cancel the pending entry, close the known
// position with a bounded wait, then close anything the book lost track of
// and cancel every remaining order.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	snap := o.book.Snapshot()

	if snap.Pending != nil {
		actx, cancel := o.actionContext(ctx)
		if err := o.gateway.CancelOrder(actx, o.cfg.Symbol, snap.Pending.OrderID); err != nil {
			o.logger.Warn("Pending entry cancel failed during shutdown", zap.Error(err))
		}
		cancel()
	}

	if snap.Position != nil && snap.Position.Qty > 0 {
		done := make(chan struct{})
		go func() {
			defer close(done)
			o.ExecuteExit(ctx, "shutdown")
		}()
		select {
		case <-done:
		case <-time.After(o.cfg.ShutdownCloseWait):
			o.logger.Error("Position exit timed out, forcing cleanup")
		}
	}

	// Final sweep for anything not tracked in the book.
	actx, cancel := o.actionContext(ctx)
	positions, err := o.gateway.QueryPositions(actx, o.cfg.Currency)
	cancel()
	if err == nil {
		for _, pos := range positions {
			if pos.Symbol != o.cfg.Symbol || pos.Size <= 0 {
				continue
			}
			closeSide := domain.SideSell
			if pos.Side == domain.SideSell {
				closeSide = domain.SideBuy
			}
			o.logger.Warn("Shutdown found untracked open position, closing",
				zap.Float64("qty", pos.Size))
			o.marketClose(ctx, closeSide, pos.Size)
		}
	}

	o.CancelAllAndReset(ctx, "shutdown")
}

// CancelAllAndReset is the idempotent cleanup sweep: bulk-cancel all orders
// for the symbol (conditional and active), reset the trade book and re-arm
// the one-shot triggers, then refresh the balance. Nothing here fails the
// caller; cancel-already-cancelled counts as success.
func (o *Orchestrator) CancelAllAndReset(ctx context.Context, reason string) {
	actx, cancel := o.actionContext(ctx)
	defer cancel()

	if err := o.gateway.CancelAllOrders(actx, o.cfg.Symbol, true); err != nil {
		o.logger.Warn("Bulk cancel (untriggered) failed, continuing", zap.Error(err))
	}
	if err := o.gateway.CancelAllOrders(actx, o.cfg.Symbol, false); err != nil {
		o.logger.Warn("Bulk cancel (active) failed, continuing", zap.Error(err))
	}

	o.tpTrigger.Reset()
	o.slTrigger.Reset()
	o.book.Reset(reason)
	mtxResets.Inc()
	o.record(ctx, domain.TradeEventReset, "", "", 0, 0, reason)

	if _, err := o.accounts.Refresh(ctx); err != nil {
		o.logger.Warn("Balance refresh after reset failed", zap.Error(err))
	}
}

// cancelPendingEntry cancels a still-open entry order if one is tracked.
// Safe when there is nothing to cancel.
func (o *Orchestrator) cancelPendingEntry(ctx context.Context) {
	orderID := o.book.PendingOrderID()
	if orderID == "" {
		return
	}
	actx, cancel := o.actionContext(ctx)
	defer cancel()
	if err := o.gateway.CancelOrder(actx, o.cfg.Symbol, orderID); err != nil {
		o.logger.Warn("Entry cancel failed, continuing",
			zap.String("order_id", shortID(orderID)), zap.Error(err))
	}
}

// closeResidual waits out the settle window, re-queries the position and
// market-closes whatever is still open.
func (o *Orchestrator) closeResidual(ctx context.Context, protocol string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(o.cfg.SettleWait):
	}

	pos, err := o.findPositionOnce(ctx, domain.SideBuy)
	if err != nil {
		o.logger.Warn("Residual position query failed", zap.String("protocol", protocol), zap.Error(err))
		return
	}
	if pos == nil || pos.Size <= 0 {
		o.logger.Info("Position fully closed, no market close needed", zap.String("protocol", protocol))
		return
	}

	o.logger.Info("Residual quantity remains, market closing",
		zap.String("protocol", protocol),
		zap.Float64("qty", pos.Size))
	o.marketClose(ctx, domain.SideSell, pos.Size)
}

// findPositionOnce is a single authoritative position query, nil when flat.
func (o *Orchestrator) findPositionOnce(ctx context.Context, side domain.Side) (*domain.Position, error) {
	actx, cancel := o.actionContext(ctx)
	defer cancel()

	positions, err := o.gateway.QueryPositions(actx, o.cfg.Currency)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		p := positions[i]
		if p.Symbol == o.cfg.Symbol && p.Side == side && p.Size > 0 {
			return &p, nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) marketClose(ctx context.Context, side domain.Side, qty float64) {
	actx, cancel := o.actionContext(ctx)
	defer cancel()

	_, err := o.gateway.PlaceOrder(actx, domain.OrderRequest{
		Symbol:     o.cfg.Symbol,
		Side:       side,
		Qty:        qty,
		Type:       "Market",
		ReduceOnly: true,
		ClientID:   uuid.NewString(),
	})
	if err != nil {
		o.logger.Warn("Market close may have failed (OK if already closed)", zap.Error(err))
		return
	}
	mtxOrders.WithLabelValues("market_close").Inc()
}

// ExitPrices computes the TP and SL prices from the actual fill price.
func (o *Orchestrator) ExitPrices(entryPrice float64, reducedTP bool) (tp, sl float64) {
	tpPct := o.cfg.TPPercent
	if reducedTP {
		tpPct = o.cfg.TPPercentReduced
	}
	tp = o.roundPrice(entryPrice * (1 + tpPct/100.0))
	sl = o.roundPrice(entryPrice * (1 - o.cfg.SLPercent/100.0))
	return tp, sl
}

// PositionSize converts the available balance into a base-asset quantity:
// risk% of available, multiplied by leverage, divided by the entry price,
// rounded down to the quantity step. Zero means do not trade.
func (o *Orchestrator) PositionSize(entryPrice, available float64) float64 {
	if available <= 0 || entryPrice <= 0 {
		return 0
	}

	riskAmount := available * o.cfg.RiskPercent / 100.0
	qty := riskAmount * float64(o.cfg.Leverage) / entryPrice

	if o.product != nil && o.product.QtyStepSize > 0 {
		qty = math.Floor(qty/o.product.QtyStepSize) * o.product.QtyStepSize
	}
	if qty < o.cfg.MinOrderQty {
		return 0
	}
	return qty
}

func (o *Orchestrator) roundPrice(price float64) float64 {
	if o.product == nil || o.product.PriceTickSize <= 0 {
		return price
	}
	return math.Round(price/o.product.PriceTickSize) * o.product.PriceTickSize
}

func (o *Orchestrator) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (o *Orchestrator) record(ctx context.Context, event, orderID string, side domain.Side, qty, price float64, note string) {
	if o.repo == nil {
		return
	}
	rec := &domain.TradeRecord{
		Symbol:    o.cfg.Symbol,
		Event:     event,
		OrderID:   orderID,
		Side:      side,
		Qty:       qty,
		Price:     price,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.repo.SaveTradeRecord(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warn("Failed to persist trade record", zap.String("event", event), zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
