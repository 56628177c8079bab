// Package service содержит бизнес-логику: управление аккаунтами и исполнение
// торговых команд через диспетчер с записью итогов в журнал ордеров.
package service

import (
	"context"

	"kucoinmanager/internal/dispatch"
	"kucoinmanager/internal/models"
	"kucoinmanager/internal/websocket"
)

// AccountRepositoryInterface определяет интерфейс репозитория аккаунтов
type AccountRepositoryInterface interface {
	Create(account *models.Account) error
	GetByID(id int64) (*models.Account, error)
	GetAll() ([]*models.Account, error)
	GetByType(apiType string) ([]*models.Account, error)
	GetByGroup(group string) ([]*models.Account, error)
	GetByIDs(ids []int64) ([]*models.Account, error)
	Update(account *models.Account) error
	Delete(id int64) error
	Count() (int, error)
}

// OrderRepositoryInterface определяет интерфейс журнала ордеров.
// Перечислены только методы, которые нужны сервисному слою.
type OrderRepositoryInterface interface {
	Create(order *models.OrderRecord) error
	GetByID(id int64) (*models.OrderRecord, error)
	GetRecent(limit int) ([]*models.OrderRecord, error)
	GetByAccountID(accountID int64, limit int) ([]*models.OrderRecord, error)
	UpdateStatus(id int64, status string) error
	MarkCanceled(orderID string) error
	MarkCanceledBySymbol(symbol string) (int64, error)
}

// OrderDispatcher определяет интерфейс диспетчера исполнения
type OrderDispatcher interface {
	PlaceOnAccounts(ctx context.Context, intent dispatch.OrderIntent, targets []dispatch.Target, observe func(dispatch.Outcome)) ([]dispatch.Outcome, error)
	CancelAllOnAccounts(ctx context.Context, symbol string, targets []dispatch.Target) ([]dispatch.CancelAllResult, error)
	CollectOpenOrderStats(ctx context.Context, symbol string, targets []dispatch.Target) ([]dispatch.StatsResult, error)
}

// AccountServiceInterface определяет интерфейс сервиса аккаунтов для API слоя
type AccountServiceInterface interface {
	Create(name, apiKey, apiSecret, apiPassphrase, apiType, group string, sandbox bool) (*models.Account, error)
	Get(id int64) (*models.Account, error)
	List() ([]*models.Account, error)
	ListByGroup(group string) ([]*models.Account, error)
	UpdateSecrets(id int64, apiKey, apiSecret, apiPassphrase string) (*models.Account, error)
	Delete(id int64) error
}

// OrderServiceInterface определяет интерфейс сервиса ордеров для API слоя
type OrderServiceInterface interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) ([]OrderResult, error)
	CancelOrder(ctx context.Context, recordID int64) error
	CancelAllOrders(ctx context.Context, symbol string, accountIDs []int64, group string) ([]CancelAllSummary, error)
	GetOpenOrders(ctx context.Context, symbol string, accountIDs []int64, group string) (*OpenOrdersReport, error)
	ListRecent(limit int) ([]*models.OrderRecord, error)
	ListByAccount(accountID int64, limit int) ([]*models.OrderRecord, error)
	GetRecord(id int64) (*models.OrderRecord, error)
}

// OrderBroadcaster - интерфейс для отправки событий исполнения через WebSocket
type OrderBroadcaster interface {
	BroadcastOrderUpdate(data *websocket.OrderUpdateData)
	BroadcastCancelUpdate(data *websocket.CancelUpdateData)
	BroadcastStatsUpdate(stats interface{})
}
