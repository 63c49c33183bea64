package usecase_test

import (
	"testing"
	"time"

	"github.com/vitos/cpr_daily_bot/internal/usecase"
)

func TestScheduleWindow_FiresOncePerDay(t *testing.T) {
	window := usecase.NewScheduleWindow("entry-check", 0, 0, 5)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	if window.TryFire(day) {
		t.Error("should not fire before the target time")
	}
	if !window.TryFire(day.Add(5 * time.Second)) {
		t.Error("should fire at the target time")
	}
	if window.TryFire(day.Add(6 * time.Second)) {
		t.Error("should not fire twice on the same day")
	}
	if window.TryFire(day.Add(12 * time.Hour)) {
		t.Error("should stay claimed for the rest of the day")
	}
}

func TestScheduleWindow_RearmsNextDay(t *testing.T) {
	window := usecase.NewScheduleWindow("eod-exit", 23, 50, 0)

	day1 := time.Date(2025, 3, 10, 23, 55, 0, 0, time.UTC)
	if !window.TryFire(day1) {
		t.Fatal("should fire on day one")
	}

	day2 := day1.AddDate(0, 0, 1)
	if !window.TryFire(day2) {
		t.Error("should fire again after midnight rollover")
	}
}

func TestScheduleWindow_LatePollStillFires(t *testing.T) {
	// A stalled poller that misses the exact second still fires once it
	// observes any time past the target.
	window := usecase.NewScheduleWindow("entry-check", 0, 0, 5)

	late := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	if !window.TryFire(late) {
		t.Error("should fire hours after the target time")
	}
}

func TestScheduleWindow_NextFire(t *testing.T) {
	window := usecase.NewScheduleWindow("entry-check", 0, 0, 5)

	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	next := window.NextFire(now)
	want := time.Date(2025, 3, 10, 0, 0, 5, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextFire() = %v, want %v", next, want)
	}

	// Once fired, the next due time rolls to tomorrow.
	window.TryFire(now.Add(5 * time.Second))
	next = window.NextFire(now.Add(6 * time.Second))
	if !next.Equal(want.AddDate(0, 0, 1)) {
		t.Errorf("NextFire() after firing = %v, want next day", next)
	}
}

func TestDefaultWindows(t *testing.T) {
	entry, eod := usecase.DefaultWindows()

	if entry.Hour != 0 || entry.Minute != 0 || entry.Second != 5 {
		t.Errorf("entry window at %02d:%02d:%02d, want 00:00:05", entry.Hour, entry.Minute, entry.Second)
	}
	if eod.Hour != 23 || eod.Minute != 50 || eod.Second != 0 {
		t.Errorf("eod window at %02d:%02d:%02d, want 23:50:00", eod.Hour, eod.Minute, eod.Second)
	}
}

func TestAcceleratedWindows(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	entry, eod := usecase.AcceleratedWindows(start, 20*time.Second, 5*time.Minute)

	if entry.Hour != 10 || entry.Minute != 0 || entry.Second != 20 {
		t.Errorf("entry window at %02d:%02d:%02d, want 10:00:20", entry.Hour, entry.Minute, entry.Second)
	}
	if eod.Hour != 10 || eod.Minute != 5 || eod.Second != 0 {
		t.Errorf("eod window at %02d:%02d:%02d, want 10:05:00", eod.Hour, eod.Minute, eod.Second)
	}
}

func TestAcceleratedWindows_OffsetAcrossMidnight(t *testing.T) {
	// Starting late in the day pushes the target past UTC midnight. The
	// window must wait for the absolute target time instead of firing
	// immediately because the clock-of-day already passed it today.
	start := time.Date(2025, 3, 10, 23, 59, 30, 0, time.UTC)
	entry, _ := usecase.AcceleratedWindows(start, time.Minute, 5*time.Minute)

	if entry.Hour != 0 || entry.Minute != 0 || entry.Second != 30 {
		t.Fatalf("entry window at %02d:%02d:%02d, want 00:00:30", entry.Hour, entry.Minute, entry.Second)
	}
	if entry.TryFire(start) {
		t.Error("should not fire on the start day")
	}
	if entry.TryFire(start.Add(30 * time.Second)) {
		t.Error("should not fire before midnight")
	}
	if !entry.TryFire(start.Add(time.Minute)) {
		t.Error("should fire at the absolute target time next day")
	}
}
