package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vitos/cpr_daily_bot/internal/domain"
)

// MockGateway records every call and can be scripted to fail specific
// order types, so the saga failure paths are reachable from tests.
type MockGateway struct {
	mu sync.Mutex

	Placed      []domain.OrderRequest
	Canceled    []string
	BulkCancels []bool // untriggered flag per call

	FailTypes map[string]bool // order Type -> fail placement
	CancelErr error

	Positions    []domain.Position
	PositionsErr error
	Balance      domain.AccountSnapshot
	Product      *domain.ProductInfo
	Candles      []domain.Candle

	Leverage int

	nextOrderID int

	orderCbs    []func(domain.OrderUpdate)
	positionCbs []func(domain.PositionUpdate)
	accountCbs  []func(domain.AccountUpdate)
	klineCbs    []func(symbol, interval string, candles []domain.Candle)
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailTypes: make(map[string]bool),
		Balance:   domain.AccountSnapshot{Total: 1000, Available: 1000},
		Product: &domain.ProductInfo{
			Symbol:         "BTCUSDT",
			PricePrecision: 1,
			QtyPrecision:   3,
			PriceTickSize:  0.1,
			QtyStepSize:    0.001,
			ContractSize:   1,
			MinLeverage:    1,
			MaxLeverage:    100,
		},
	}
}

func (m *MockGateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTypes[req.Type] {
		return "", errors.New("placement rejected")
	}
	m.nextOrderID++
	m.Placed = append(m.Placed, req)
	return fmt.Sprintf("order-%d", m.nextOrderID), nil
}

func (m *MockGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Canceled = append(m.Canceled, orderID)
	return m.CancelErr
}

func (m *MockGateway) CancelAllOrders(ctx context.Context, symbol string, untriggered bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BulkCancels = append(m.BulkCancels, untriggered)
	return nil
}

func (m *MockGateway) QueryPositions(ctx context.Context, currency string) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PositionsErr != nil {
		return nil, m.PositionsErr
	}
	out := make([]domain.Position, len(m.Positions))
	copy(out, m.Positions)
	return out, nil
}

func (m *MockGateway) QueryBalance(ctx context.Context, currency string) (domain.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balance, nil
}

func (m *MockGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Leverage = leverage
	return nil
}

func (m *MockGateway) FetchProductInfo(ctx context.Context, symbol string) (*domain.ProductInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Product == nil {
		return nil, errors.New("product not found")
	}
	return m.Product, nil
}

func (m *MockGateway) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Candle, len(m.Candles))
	copy(out, m.Candles)
	return out, nil
}

func (m *MockGateway) OnOrderUpdate(callback func(domain.OrderUpdate)) {
	m.orderCbs = append(m.orderCbs, callback)
}

func (m *MockGateway) OnPositionUpdate(callback func(domain.PositionUpdate)) {
	m.positionCbs = append(m.positionCbs, callback)
}

func (m *MockGateway) OnAccountUpdate(callback func(domain.AccountUpdate)) {
	m.accountCbs = append(m.accountCbs, callback)
}

func (m *MockGateway) OnKline(callback func(symbol, interval string, candles []domain.Candle)) {
	m.klineCbs = append(m.klineCbs, callback)
}

func (m *MockGateway) Connect(ctx context.Context) error { return nil }
func (m *MockGateway) Close() error                      { return nil }

// PushKline feeds a kline event to every registered listener.
func (m *MockGateway) PushKline(symbol, interval string, candles []domain.Candle) {
	for _, cb := range m.klineCbs {
		cb(symbol, interval, candles)
	}
}

// PlacedByType returns recorded placements matching the order type.
func (m *MockGateway) PlacedByType(orderType string) []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderRequest
	for _, req := range m.Placed {
		if req.Type == orderType {
			out = append(out, req)
		}
	}
	return out
}

func (m *MockGateway) CanceledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Canceled))
	copy(out, m.Canceled)
	return out
}
