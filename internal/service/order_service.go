package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"kucoinmanager/internal/dispatch"
	"kucoinmanager/internal/models"
	"kucoinmanager/internal/repository"
	"kucoinmanager/internal/websocket"
	"kucoinmanager/pkg/utils"
)

// Ошибки сервиса ордеров
var (
	ErrNoTargetAccounts = errors.New("no accounts match the request")
)

// defaultListLimit ограничивает выдачу журнала без явного limit
const defaultListLimit = 100

// PlaceOrderRequest - команда размещения ордера на группе аккаунтов
type PlaceOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Size     string  `json:"size"`
	Price    string  `json:"price"` // пусто = market
	Leverage int     `json:"leverage"`
	// AccountIDs - явный список аккаунтов; пустой список вместе с пустой
	// группой означает все future-аккаунты
	AccountIDs []int64 `json:"account_ids"`
	Group      string  `json:"group"`
}

// OrderResult - итог размещения на одном аккаунте
type OrderResult struct {
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
	RecordID    int64  `json:"record_id,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	ClientOid   string `json:"client_oid,omitempty"`
	Status      string `json:"status"`
	Leverage    int    `json:"leverage,omitempty"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
}

// CancelAllSummary - итог массовой отмены на одном аккаунте
type CancelAllSummary struct {
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
	Cancelled   int    `json:"cancelled"`
	Error       string `json:"error,omitempty"`
}

// AccountOpenOrders - открытые ордера одного аккаунта
type AccountOpenOrders struct {
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
	BuySize     int    `json:"buy_size"`
	SellSize    int    `json:"sell_size"`
	BuyCost     string `json:"buy_cost,omitempty"`
	SellCost    string `json:"sell_cost,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
}

// OpenOrdersReport - сводка открытых ордеров по всем аккаунтам.
// FailCount считает аккаунты, опросить которые не удалось.
type OpenOrdersReport struct {
	Symbol    string              `json:"symbol"`
	Accounts  []AccountOpenOrders `json:"accounts"`
	FailCount int                 `json:"fail_count"`
}

// OrderService - оркестрация исполнения: разнос команды по аккаунтам,
// запись итогов в журнал и broadcast событий.
type OrderService struct {
	accounts   AccountRepositoryInterface
	orders     OrderRepositoryInterface
	accountSvc *AccountService
	dispatcher OrderDispatcher
	factory    dispatch.ClientFactory
	logger     *utils.Logger

	// WebSocket hub для broadcast событий исполнения
	wsHub OrderBroadcaster
}

// NewOrderService создает новый экземпляр сервиса
func NewOrderService(
	accounts AccountRepositoryInterface,
	orders OrderRepositoryInterface,
	accountSvc *AccountService,
	dispatcher OrderDispatcher,
	factory dispatch.ClientFactory,
	logger *utils.Logger,
) *OrderService {
	return &OrderService{
		accounts:   accounts,
		orders:     orders,
		accountSvc: accountSvc,
		dispatcher: dispatcher,
		factory:    factory,
		logger:     logger.WithComponent("order_service"),
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast событий.
// Вызывается после инициализации Hub в main.go.
func (s *OrderService) SetWebSocketHub(hub OrderBroadcaster) {
	s.wsHub = hub
}

// resolveTargets собирает целевые аккаунты команды и расшифровывает их
// ключи. Аккаунт, ключи которого не расшифровались, попадает в failed -
// он получит fail-результат, не мешая остальным.
func (s *OrderService) resolveTargets(accountIDs []int64, group string) ([]dispatch.Target, []OrderResult, error) {
	var (
		list []*models.Account
		err  error
	)

	switch {
	case len(accountIDs) > 0:
		list, err = s.accounts.GetByIDs(accountIDs)
	case group != "":
		list, err = s.accounts.GetByGroup(group)
	default:
		list, err = s.accounts.GetByType(models.AccountTypeFuture)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(list) == 0 {
		return nil, nil, ErrNoTargetAccounts
	}

	var targets []dispatch.Target
	var failed []OrderResult

	for _, account := range list {
		creds, err := s.accountSvc.Credentials(account)
		if err != nil {
			s.logger.Error("failed to decrypt account credentials",
				zap.String("account", account.Name),
				zap.Error(err),
			)
			failed = append(failed, OrderResult{
				AccountID:   account.ID,
				AccountName: account.Name,
				Status:      models.OrderStatusFailed,
				Error:       err.Error(),
			})
			continue
		}
		targets = append(targets, dispatch.Target{Account: *account, Creds: creds})
	}

	if len(targets) == 0 && len(failed) == 0 {
		return nil, nil, ErrNoTargetAccounts
	}

	return targets, failed, nil
}

// PlaceOrder исполняет команду на всех целевых аккаунтах. Итог каждого
// аккаунта записывается в журнал и уходит в WebSocket сразу по завершении
// этого аккаунта - медленный аккаунт не задерживает запись остальных.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) ([]OrderResult, error) {
	intent := dispatch.OrderIntent{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Size:     req.Size,
		Price:    req.Price,
		Leverage: req.Leverage,
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	targets, failed, err := s.resolveTargets(req.AccountIDs, req.Group)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	recordIDs := make(map[int64]int64)

	observe := func(o dispatch.Outcome) {
		record := s.persistOutcome(intent, o)
		if record != nil {
			mu.Lock()
			recordIDs[o.Account.ID] = record.ID
			mu.Unlock()
		}
		s.broadcastOutcome(intent, o)
	}

	var outcomes []dispatch.Outcome
	if len(targets) > 0 {
		outcomes, err = s.dispatcher.PlaceOnAccounts(ctx, intent, targets, observe)
		if err != nil {
			return nil, err
		}
	}

	results := make([]OrderResult, 0, len(outcomes)+len(failed))
	for _, o := range outcomes {
		result := OrderResult{
			AccountID:   o.Account.ID,
			AccountName: o.Account.Name,
			RecordID:    recordIDs[o.Account.ID],
			OrderID:     o.OrderID,
			ClientOid:   o.ClientOid,
			Status:      models.OrderStatusOpen,
			Leverage:    o.Leverage,
			Attempts:    o.Attempts,
		}
		if o.Err != nil {
			result.Status = models.OrderStatusFailed
			result.Error = o.Err.Error()
			result.OrderID = ""
		}
		results = append(results, result)
	}
	results = append(results, failed...)

	return results, nil
}

// persistOutcome записывает итог одного аккаунта в журнал. Ровно одна
// запись на пару (команда, аккаунт): дубль означает баг в исполнении
// и логируется громко.
func (s *OrderService) persistOutcome(intent dispatch.OrderIntent, o dispatch.Outcome) *models.OrderRecord {
	record := &models.OrderRecord{
		OrderID:   o.OrderID,
		ClientOid: o.ClientOid,
		AccountID: o.Account.ID,
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Size:      intent.Size,
		Price:     intent.Price,
		Leverage:  o.Leverage,
		Status:    models.OrderStatusOpen,
	}
	if o.Err != nil {
		record.Status = models.OrderStatusFailed
		record.ErrorMessage = o.Err.Error()
	}

	if err := s.orders.Create(record); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			s.logger.Error("duplicate order record, execution layer produced two records for one account",
				zap.String("client_oid", o.ClientOid),
				zap.Int64("account_id", o.Account.ID),
			)
		} else {
			s.logger.Error("failed to persist order record",
				zap.String("client_oid", o.ClientOid),
				zap.Int64("account_id", o.Account.ID),
				zap.Error(err),
			)
		}
		return nil
	}

	return record
}

func (s *OrderService) broadcastOutcome(intent dispatch.OrderIntent, o dispatch.Outcome) {
	if s.wsHub == nil {
		return
	}

	data := &websocket.OrderUpdateData{
		AccountID:   o.Account.ID,
		AccountName: o.Account.Name,
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Size:        intent.Size,
		Price:       intent.Price,
		Leverage:    o.Leverage,
		OrderID:     o.OrderID,
		Status:      models.OrderStatusOpen,
		Attempts:    o.Attempts,
	}
	if o.Err != nil {
		data.Status = models.OrderStatusFailed
		data.Error = o.Err.Error()
	}

	s.wsHub.BroadcastOrderUpdate(data)
}

// CancelOrder отменяет ордер по ID записи журнала. Записи со статусом
// fail не имеют ордера на бирже - запись помечается отменённой без
// обращения к бирже. Повторная отмена уже отменённой записи тоже успех.
func (s *OrderService) CancelOrder(ctx context.Context, recordID int64) error {
	record, err := s.orders.GetByID(recordID)
	if err != nil {
		return err
	}

	if !record.IsLive() {
		s.logger.Debug("cancel of non-live order record, nothing to do on exchange",
			zap.Int64("record_id", recordID),
			zap.String("status", record.Status),
		)
		if record.Status != models.OrderStatusCanceled {
			return s.orders.UpdateStatus(record.ID, models.OrderStatusCanceled)
		}
		return nil
	}

	account, err := s.accounts.GetByID(record.AccountID)
	if err != nil {
		return err
	}
	creds, err := s.accountSvc.Credentials(account)
	if err != nil {
		return err
	}

	client := s.factory(creds, account.Sandbox)
	if err := client.CancelOrder(ctx, record.OrderID); err != nil {
		return err
	}

	if err := s.orders.UpdateStatus(record.ID, models.OrderStatusCanceled); err != nil {
		return err
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastCancelUpdate(&websocket.CancelUpdateData{
			AccountID:   account.ID,
			AccountName: account.Name,
			Symbol:      record.Symbol,
			OrderID:     record.OrderID,
			Cancelled:   1,
		})
	}

	return nil
}

// CancelAllOrders отменяет все открытые ордера на символе на всех целевых
// аккаунтах и помечает их в журнале.
func (s *OrderService) CancelAllOrders(ctx context.Context, symbol string, accountIDs []int64, group string) ([]CancelAllSummary, error) {
	targets, _, err := s.resolveTargets(accountIDs, group)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTargetAccounts
	}

	results, err := s.dispatcher.CancelAllOnAccounts(ctx, symbol, targets)
	if err != nil {
		return nil, err
	}

	// softSuccess - биржа подтвердила отмену, но не вернула список
	// идентификаторов; журнал чистится по символу
	softSuccess := false
	summaries := make([]CancelAllSummary, 0, len(results))

	for _, res := range results {
		summary := CancelAllSummary{
			AccountID:   res.Account.ID,
			AccountName: res.Account.Name,
			Cancelled:   len(res.CancelledIDs),
		}
		if res.Err != nil {
			summary.Error = res.Err.Error()
		} else if len(res.CancelledIDs) == 0 {
			softSuccess = true
		}

		for _, orderID := range res.CancelledIDs {
			if err := s.orders.MarkCanceled(orderID); err != nil && !errors.Is(err, repository.ErrOrderNotFound) {
				s.logger.Error("failed to mark order canceled",
					zap.String("order_id", orderID),
					zap.Error(err),
				)
			}
		}

		if s.wsHub != nil {
			s.wsHub.BroadcastCancelUpdate(&websocket.CancelUpdateData{
				AccountID:   res.Account.ID,
				AccountName: res.Account.Name,
				Symbol:      symbol,
				Cancelled:   len(res.CancelledIDs),
				Error:       summary.Error,
			})
		}

		summaries = append(summaries, summary)
	}

	if softSuccess {
		if _, err := s.orders.MarkCanceledBySymbol(symbol); err != nil {
			s.logger.Error("failed to mark symbol orders canceled",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		}
	}

	return summaries, nil
}

// GetOpenOrders опрашивает открытые ордера на символе по всем целевым
// аккаунтам. Недоступные аккаунты попадают в отчёт с ошибкой и считаются
// в FailCount.
func (s *OrderService) GetOpenOrders(ctx context.Context, symbol string, accountIDs []int64, group string) (*OpenOrdersReport, error) {
	targets, _, err := s.resolveTargets(accountIDs, group)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTargetAccounts
	}

	results, err := s.dispatcher.CollectOpenOrderStats(ctx, symbol, targets)
	if err != nil {
		return nil, err
	}

	report := &OpenOrdersReport{Symbol: symbol}
	for _, res := range results {
		entry := AccountOpenOrders{
			AccountID:   res.Account.ID,
			AccountName: res.Account.Name,
			Attempts:    res.Attempts,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
			report.FailCount++
		} else {
			entry.BuySize = res.Stats.BuySize
			entry.SellSize = res.Stats.SellSize
			entry.BuyCost = res.Stats.BuyCost
			entry.SellCost = res.Stats.SellCost
			entry.Currency = res.Stats.Currency
		}
		report.Accounts = append(report.Accounts, entry)
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastStatsUpdate(report)
	}

	return report, nil
}

// ListRecent возвращает последние записи журнала
func (s *OrderService) ListRecent(limit int) ([]*models.OrderRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.orders.GetRecent(limit)
}

// ListByAccount возвращает записи журнала одного аккаунта
func (s *OrderService) ListByAccount(accountID int64, limit int) ([]*models.OrderRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.orders.GetByAccountID(accountID, limit)
}

// GetRecord возвращает запись журнала по ID
func (s *OrderService) GetRecord(id int64) (*models.OrderRecord, error) {
	return s.orders.GetByID(id)
}
