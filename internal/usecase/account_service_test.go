package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/cpr_daily_bot/internal/domain"
	"github.com/vitos/cpr_daily_bot/internal/usecase"
	"go.uber.org/zap"
)

func TestAccountService_Refresh(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Balance = domain.AccountSnapshot{Total: 500, Available: 320}
	service := usecase.NewAccountService(gateway, "USDT", zap.NewNop())

	snap, err := service.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500.0, snap.Total)
	assert.Equal(t, 320.0, snap.Available)
	assert.False(t, snap.UpdatedAt.IsZero())

	cached := service.Snapshot()
	assert.Equal(t, snap.Total, cached.Total)
	assert.Equal(t, snap.Available, cached.Available)
}

func TestAccountService_ApplyUpdate(t *testing.T) {
	gateway := NewMockGateway()
	service := usecase.NewAccountService(gateway, "USDT", zap.NewNop())

	service.ApplyUpdate(domain.AccountUpdate{Currency: "USDT", Total: 777, Available: 700})
	assert.Equal(t, 777.0, service.Snapshot().Total)

	// Updates for another settlement currency are dropped.
	service.ApplyUpdate(domain.AccountUpdate{Currency: "BTC", Total: 1, Available: 1})
	assert.Equal(t, 777.0, service.Snapshot().Total)
}
