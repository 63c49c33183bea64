package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/cpr_daily_bot/internal/domain"
	"go.uber.org/zap"
)

// ScheduleWindow fires at most once per UTC calendar day, at or after its
// target time of day. Firing is debounced by the date it last fired, so the
// polling cadence does not matter, and the window re-arms itself at
// midnight rollover.
type ScheduleWindow struct {
	Name   string
	Hour   int
	Minute int
	Second int

	mu        sync.Mutex
	lastFired string // UTC date of the last fire, "2006-01-02"
}

func NewScheduleWindow(name string, hour, minute, second int) *ScheduleWindow {
	return &ScheduleWindow{Name: name, Hour: hour, Minute: minute, Second: second}
}

// DefaultWindows returns the production schedule: the entry check shortly
// after the daily candle rolls over, and the end-of-day exit ten minutes
// before the next rollover.
func DefaultWindows() (entry, eod *ScheduleWindow) {
	return NewScheduleWindow("entry-check", 0, 0, 5),
		NewScheduleWindow("eod-exit", 23, 50, 0)
}

// TryFire reports whether the window should fire at now, claiming today's
// slot when it does.
func (w *ScheduleWindow) TryFire(now time.Time) bool {
	now = now.UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), w.Hour, w.Minute, w.Second, 0, time.UTC)
	if now.Before(target) {
		return false
	}

	today := now.Format("2006-01-02")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastFired == today {
		return false
	}
	w.lastFired = today
	return true
}

// NextFire returns the next time the window is due.
func (w *ScheduleWindow) NextFire(now time.Time) time.Time {
	now = now.UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), w.Hour, w.Minute, w.Second, 0, time.UTC)

	w.mu.Lock()
	firedToday := w.lastFired == now.Format("2006-01-02")
	w.mu.Unlock()

	if !now.Before(target) || firedToday {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// Scheduler polls the two daily windows on a short fixed interval and
// invokes the entry check and the end-of-day exit. Polling is deliberately
// imprecise; the windows own the fire-once guarantee.
type Scheduler struct {
	entryWindow *ScheduleWindow
	eodWindow   *ScheduleWindow
	orch        *Orchestrator
	logger      *zap.Logger
	interval    time.Duration
	timeNow     func() time.Time // for testing
}

func NewScheduler(entry, eod *ScheduleWindow, orch *Orchestrator, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		entryWindow: entry,
		eodWindow:   eod,
		orch:        orch,
		logger:      logger,
		interval:    interval,
		timeNow:     time.Now,
	}
}

// Run polls until ctx is done. A failing action never stops the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started",
		zap.String("entry_window", s.entryWindow.NextFire(s.timeNow()).Format(time.RFC3339)),
		zap.String("eod_window", s.eodWindow.NextFire(s.timeNow()).Format(time.RFC3339)))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates both windows once.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.timeNow()

	if s.entryWindow.TryFire(now) {
		s.logger.Info("Daily entry check window fired",
			zap.String("at", now.UTC().Format(time.RFC3339)))
		if s.orch.Book().State() == domain.StateFlat {
			s.orch.CheckEntry(ctx)
		} else {
			s.logger.Info("Entry window skipped: trade in progress",
				zap.String("state", string(s.orch.Book().State())))
		}
	}

	if s.eodWindow.TryFire(now) {
		s.logger.Info("End-of-day window fired",
			zap.String("at", now.UTC().Format(time.RFC3339)))
		s.orch.HandleEndOfDay(ctx)
	}
}

// NextWindows reports when each window is next due, for the status surface.
func (s *Scheduler) NextWindows() (entry, eod time.Time) {
	now := s.timeNow()
	return s.entryWindow.NextFire(now), s.eodWindow.NextFire(now)
}

// AcceleratedWindows builds near-future windows offset from start, used for
// rehearsal runs. The scheduler logic is identical to production.
func AcceleratedWindows(start time.Time, entryAfter, eodAfter time.Duration) (entry, eod *ScheduleWindow) {
	return acceleratedWindow("entry-check", start.UTC(), entryAfter),
		acceleratedWindow("eod-exit", start.UTC(), eodAfter)
}

func acceleratedWindow(name string, start time.Time, offset time.Duration) *ScheduleWindow {
	target := start.Add(offset)
	w := NewScheduleWindow(name, target.Hour(), target.Minute(), target.Second())
	// An offset crossing UTC midnight lands on the next calendar day. The
	// start day's slot is claimed up front so the window fires at the
	// absolute target time instead of immediately.
	if target.Format("2006-01-02") != start.Format("2006-01-02") {
		w.lastFired = start.Format("2006-01-02")
	}
	return w
}
