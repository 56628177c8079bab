package service

import (
	"context"
	"sync"
	"time"

	"kucoinmanager/internal/dispatch"
	"kucoinmanager/internal/exchange"
	"kucoinmanager/internal/models"
	"kucoinmanager/internal/repository"
	"kucoinmanager/internal/websocket"
)

// ============================================================
// Mock репозитории
// ============================================================

type mockAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	nextID   int64
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[int64]*models.Account), nextID: 1}
}

func (m *mockAccountRepo) Create(account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.APIKey == account.APIKey {
			return repository.ErrDuplicateAPIKey
		}
	}
	account.ID = m.nextID
	m.nextID++
	account.CreatedAt = time.Now()
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *mockAccountRepo) GetByID(id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (m *mockAccountRepo) GetAll() ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockAccountRepo) GetByType(apiType string) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, a := range m.accounts {
		if a.APIType == apiType {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAccountRepo) GetByGroup(group string) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, a := range m.accounts {
		if a.Group == group {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAccountRepo) GetByIDs(ids []int64) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAccountRepo) Update(account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return repository.ErrAccountNotFound
	}
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *mockAccountRepo) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *mockAccountRepo) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts), nil
}

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[int64]*models.OrderRecord
	nextID int64
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[int64]*models.OrderRecord), nextID: 1}
}

func (m *mockOrderRepo) Create(order *models.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ClientOid == order.ClientOid && o.AccountID == order.AccountID {
			return repository.ErrDuplicateOrder
		}
	}
	order.ID = m.nextID
	m.nextID++
	order.CreatedAt = time.Now()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(id int64) (*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *mockOrderRepo) GetRecent(limit int) ([]*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OrderRecord
	for _, o := range m.orders {
		cp := *o
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockOrderRepo) GetByAccountID(accountID int64, limit int) ([]*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OrderRecord
	for _, o := range m.orders {
		if o.AccountID == accountID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (m *mockOrderRepo) MarkCanceled(orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderID == orderID {
			o.Status = models.OrderStatusCanceled
			return nil
		}
	}
	return repository.ErrOrderNotFound
}

func (m *mockOrderRepo) MarkCanceledBySymbol(symbol string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.orders {
		if o.Symbol == symbol && o.Status == models.OrderStatusOpen {
			o.Status = models.OrderStatusCanceled
			n++
		}
	}
	return n, nil
}

// Count и CountByStatus не входят в интерфейс журнала - тесты зовут их
// напрямую для проверки содержимого мока.
func (m *mockOrderRepo) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), nil
}

func (m *mockOrderRepo) CountByStatus(status string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

// ============================================================
// Mock биржевой клиент и hub
// ============================================================

type mockExchangeClient struct {
	placeFn     func(ctx context.Context, params exchange.OrderParams) (string, error)
	cancelFn    func(ctx context.Context, orderID string) error
	cancelAllFn func(ctx context.Context, symbol string) ([]string, error)
	statsFn     func(ctx context.Context, symbol string) (*exchange.OpenOrderStats, error)
}

func (m *mockExchangeClient) PlaceOrder(ctx context.Context, params exchange.OrderParams) (string, error) {
	if m.placeFn != nil {
		return m.placeFn(ctx, params)
	}
	return "mock-order", nil
}

func (m *mockExchangeClient) CancelOrder(ctx context.Context, orderID string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, orderID)
	}
	return nil
}

func (m *mockExchangeClient) CancelAllOrders(ctx context.Context, symbol string) ([]string, error) {
	if m.cancelAllFn != nil {
		return m.cancelAllFn(ctx, symbol)
	}
	return nil, nil
}

func (m *mockExchangeClient) GetOpenOrderStats(ctx context.Context, symbol string) (*exchange.OpenOrderStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, symbol)
	}
	return &exchange.OpenOrderStats{}, nil
}

type mockHub struct {
	mu            sync.Mutex
	orderUpdates  []*websocket.OrderUpdateData
	cancelUpdates []*websocket.CancelUpdateData
	statsUpdates  []interface{}
}

func (m *mockHub) BroadcastOrderUpdate(data *websocket.OrderUpdateData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderUpdates = append(m.orderUpdates, data)
}

func (m *mockHub) BroadcastCancelUpdate(data *websocket.CancelUpdateData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelUpdates = append(m.cancelUpdates, data)
}

func (m *mockHub) BroadcastStatsUpdate(stats interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsUpdates = append(m.statsUpdates, stats)
}

func (m *mockHub) orderUpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orderUpdates)
}

var _ OrderDispatcher = (*dispatch.Dispatcher)(nil)
