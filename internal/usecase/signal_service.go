package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitos/cpr_daily_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	fastMAWindow = 21
	slowMAWindow = 50

	// Keep a bounded daily history; enough for the slow MA plus margin.
	maxCandleHistory = 400
)

// SignalService maintains the daily candle history and derives the pivot
// range and moving averages from it. History is bootstrapped over REST and
// kept current from the kline stream.
type SignalService struct {
	gateway  domain.Gateway
	logger   *zap.Logger
	interval string

	mu      sync.Mutex
	candles map[string][]domain.Candle // symbol -> ascending daily candles
}

func NewSignalService(gateway domain.Gateway, interval string, logger *zap.Logger) *SignalService {
	s := &SignalService{
		gateway:  gateway,
		logger:   logger,
		interval: interval,
		candles:  make(map[string][]domain.Candle),
	}
	gateway.OnKline(s.handleKline)
	return s
}

// Bootstrap loads the initial candle history for symbol.
func (s *SignalService) Bootstrap(ctx context.Context, symbol string) error {
	candles, err := s.gateway.GetCandles(ctx, symbol, s.interval, maxCandleHistory)
	if err != nil {
		return fmt.Errorf("failed to load candle history: %w", err)
	}
	if len(candles) < slowMAWindow+2 {
		return &domain.ConfigurationError{
			Detail: fmt.Sprintf("insufficient daily history for %s: got %d candles, need %d",
				symbol, len(candles), slowMAWindow+2),
		}
	}

	s.mu.Lock()
	s.candles[symbol] = candles
	s.mu.Unlock()

	s.logger.Info("Candle history loaded",
		zap.String("symbol", symbol),
		zap.Int("candles", len(candles)))
	return nil
}

func (s *SignalService) handleKline(symbol, interval string, candles []domain.Candle) {
	if interval != s.interval || len(candles) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.candles[symbol]
	for _, c := range candles {
		if c.Low > c.High {
			continue
		}
		if n := len(history); n > 0 && history[n-1].Time == c.Time {
			history[n-1] = c
			continue
		}
		history = append(history, c)
	}
	if len(history) > maxCandleHistory {
		history = history[len(history)-maxCandleHistory:]
	}
	s.candles[symbol] = history
}

// LatestSignals computes the pivot range from the previous daily candle and
// the MA pair over daily closes. Returns an error when the history is too
// short to decide.
func (s *SignalService) LatestSignals(ctx context.Context, symbol string) (*domain.Signals, error) {
	s.mu.Lock()
	history := s.candles[symbol]
	candles := make([]domain.Candle, len(history))
	copy(candles, history)
	s.mu.Unlock()

	if len(candles) < slowMAWindow+2 {
		return nil, &domain.StateInconsistency{
			Op:     "latest signals",
			Detail: fmt.Sprintf("only %d daily candles available", len(candles)),
		}
	}

	today := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	if prev.High < prev.Low {
		return nil, &domain.StateInconsistency{
			Op:     "latest signals",
			Detail: "previous daily candle has high < low",
		}
	}

	top, center, bottom := PivotRange(prev.High, prev.Low, prev.Close)

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	return &domain.Signals{
		PivotTop:    top,
		PivotCenter: center,
		PivotBottom: bottom,
		FastMA:      EMA(closes, fastMAWindow),
		SlowMA:      EMA(closes, slowMAWindow),
		DailyOpen:   today.Open,
	}, nil
}

// PivotRange derives the daily pivot band from the previous day's candle.
// The top/bottom are swapped if needed so top >= bottom.
func PivotRange(high, low, close float64) (top, center, bottom float64) {
	if high < low {
		high, low = low, high
	}
	center = (high + low + close) / 3.0
	top = (high + low) / 2.0
	bottom = 2*center - top
	if top < bottom {
		top, bottom = bottom, top
	}
	return top, center, bottom
}

// EMA computes an exponential moving average over values, seeded with the
// simple average of the first window points.
func EMA(values []float64, window int) float64 {
	if len(values) < window {
		return 0
	}
	var seed float64
	for _, v := range values[:window] {
		seed += v
	}
	ema := seed / float64(window)

	k := 2.0 / float64(window+1)
	for _, v := range values[window:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}
