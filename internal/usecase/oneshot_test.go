package usecase_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vitos/cpr_daily_bot/internal/usecase"
)

func TestOneShotTrigger_SingleClaim(t *testing.T) {
	trigger := usecase.NewOneShotTrigger()

	if !trigger.TryClaim() {
		t.Fatal("first claim should succeed")
	}
	if trigger.TryClaim() {
		t.Error("second claim should fail")
	}
	if !trigger.Fired() {
		t.Error("trigger should report fired")
	}
}

func TestOneShotTrigger_ConcurrentClaims(t *testing.T) {
	trigger := usecase.NewOneShotTrigger()

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if trigger.TryClaim() {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("exactly one claim should win, got %d", wins)
	}
}

func TestOneShotTrigger_Reset(t *testing.T) {
	trigger := usecase.NewOneShotTrigger()

	trigger.TryClaim()
	trigger.Reset()

	if trigger.Fired() {
		t.Error("reset trigger should not report fired")
	}
	if !trigger.TryClaim() {
		t.Error("claim after reset should succeed")
	}
}
