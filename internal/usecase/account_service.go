package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/cpr_daily_bot/internal/domain"
	"go.uber.org/zap"
)

// AccountService keeps a cached balance snapshot. The cache is for display
// and logging; sizing decisions call Refresh first.
type AccountService struct {
	gateway  domain.Gateway
	currency string
	logger   *zap.Logger

	mu       sync.Mutex
	snapshot domain.AccountSnapshot
}

func NewAccountService(gateway domain.Gateway, currency string, logger *zap.Logger) *AccountService {
	return &AccountService{
		gateway:  gateway,
		currency: currency,
		logger:   logger,
	}
}

// Refresh queries the gateway and updates the cached snapshot.
func (s *AccountService) Refresh(ctx context.Context) (domain.AccountSnapshot, error) {
	snap, err := s.gateway.QueryBalance(ctx, s.currency)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	snap.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	changed := snap.Total != s.snapshot.Total || snap.Available != s.snapshot.Available
	s.snapshot = snap
	s.mu.Unlock()

	mtxBalance.Set(snap.Total)
	if changed {
		s.logger.Info("Balance updated",
			zap.Float64("total", snap.Total),
			zap.Float64("available", snap.Available))
	}
	return snap, nil
}

// Snapshot returns the last cached balances.
func (s *AccountService) Snapshot() domain.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Run refreshes the balance on a fixed interval until ctx is done.
func (s *AccountService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.Error("Balance refresh failed", zap.Error(err))
			}
		}
	}
}

// ApplyUpdate ingests a balance push event from the account stream.
func (s *AccountService) ApplyUpdate(u domain.AccountUpdate) {
	if u.Currency != s.currency {
		return
	}
	s.mu.Lock()
	s.snapshot = domain.AccountSnapshot{
		Total:     u.Total,
		Available: u.Available,
		UpdatedAt: time.Now().UTC(),
	}
	s.mu.Unlock()
	mtxBalance.Set(u.Total)
}
