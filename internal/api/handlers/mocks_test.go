package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"kucoinmanager/internal/models"
	"kucoinmanager/internal/repository"
	"kucoinmanager/internal/service"
)

// ErrMockDatabase имитирует отказ хранилища в тестах
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Account Service ============

// MockAccountService мок для AccountServiceInterface
type MockAccountService struct {
	accounts  map[int64]*models.Account
	createErr error
	listErr   error
	nextID    int64
	mu        sync.RWMutex
}

// NewMockAccountService создает новый мок сервиса аккаунтов
func NewMockAccountService() *MockAccountService {
	return &MockAccountService{
		accounts: make(map[int64]*models.Account),
		nextID:   1,
	}
}

func (m *MockAccountService) Create(name, apiKey, apiSecret, apiPassphrase, apiType, group string, sandbox bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	if name == "" {
		return nil, service.ErrInvalidAccountName
	}
	if apiKey == "" || apiSecret == "" || apiPassphrase == "" {
		return nil, service.ErrInvalidCredentials
	}
	for _, acc := range m.accounts {
		if acc.APIKey == apiKey {
			return nil, repository.ErrDuplicateAPIKey
		}
	}
	if apiType == "" {
		apiType = models.AccountTypeFuture
	}

	account := &models.Account{
		ID:        m.nextID,
		Name:      name,
		APIKey:    apiKey,
		APIType:   apiType,
		Group:     group,
		Sandbox:   sandbox,
		CreatedAt: time.Now(),
	}
	m.accounts[m.nextID] = account
	m.nextID++
	return account, nil
}

func (m *MockAccountService) Get(id int64) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return account, nil
}

func (m *MockAccountService) List() ([]*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		result = append(result, acc)
	}
	return result, nil
}

func (m *MockAccountService) ListByGroup(group string) ([]*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Account
	for _, acc := range m.accounts {
		if acc.Group == group {
			result = append(result, acc)
		}
	}
	return result, nil
}

func (m *MockAccountService) UpdateSecrets(id int64, apiKey, apiSecret, apiPassphrase string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	if apiKey == "" || apiSecret == "" || apiPassphrase == "" {
		return nil, service.ErrInvalidCredentials
	}
	account.APIKey = apiKey
	return account, nil
}

func (m *MockAccountService) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

// ============ Mock Order Service ============

// MockOrderService мок для OrderServiceInterface
type MockOrderService struct {
	records   map[int64]*models.OrderRecord
	placeFn   func(req service.PlaceOrderRequest) ([]service.OrderResult, error)
	cancelErr error
	report    *service.OpenOrdersReport
	reportErr error
	summaries []service.CancelAllSummary
	cancelled []int64
	mu        sync.Mutex
}

// NewMockOrderService создает новый мок сервиса ордеров
func NewMockOrderService() *MockOrderService {
	return &MockOrderService{
		records: make(map[int64]*models.OrderRecord),
	}
}

func (m *MockOrderService) PlaceOrder(_ context.Context, req service.PlaceOrderRequest) ([]service.OrderResult, error) {
	if m.placeFn != nil {
		return m.placeFn(req)
	}
	return nil, nil
}

func (m *MockOrderService) CancelOrder(_ context.Context, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelErr != nil {
		return m.cancelErr
	}
	if _, ok := m.records[recordID]; !ok {
		return repository.ErrOrderNotFound
	}
	m.cancelled = append(m.cancelled, recordID)
	return nil
}

func (m *MockOrderService) CancelAllOrders(_ context.Context, symbol string, accountIDs []int64, group string) ([]service.CancelAllSummary, error) {
	if m.summaries == nil {
		return nil, service.ErrNoTargetAccounts
	}
	return m.summaries, nil
}

func (m *MockOrderService) GetOpenOrders(_ context.Context, symbol string, accountIDs []int64, group string) (*service.OpenOrdersReport, error) {
	if m.reportErr != nil {
		return nil, m.reportErr
	}
	if m.report == nil {
		return &service.OpenOrdersReport{Symbol: symbol}, nil
	}
	return m.report, nil
}

func (m *MockOrderService) ListRecent(limit int) ([]*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*models.OrderRecord, 0, len(m.records))
	for _, rec := range m.records {
		result = append(result, rec)
	}
	return result, nil
}

func (m *MockOrderService) ListByAccount(accountID int64, limit int) ([]*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*models.OrderRecord
	for _, rec := range m.records {
		if rec.AccountID == accountID {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *MockOrderService) GetRecord(id int64) (*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return rec, nil
}

// Проверки соответствия интерфейсам на этапе компиляции
var (
	_ service.AccountServiceInterface = (*MockAccountService)(nil)
	_ service.OrderServiceInterface   = (*MockOrderService)(nil)
)
