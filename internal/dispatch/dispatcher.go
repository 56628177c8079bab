// Package dispatch разносит одну торговую команду по множеству суб-аккаунтов:
// на каждый аккаунт запускается своя горутина со своей retry-политикой,
// общий семафор ограничивает число одновременных запросов к бирже.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kucoinmanager/internal/exchange"
	"kucoinmanager/internal/models"
	"kucoinmanager/pkg/retry"
	"kucoinmanager/pkg/utils"
)

var (
	// ErrNoAccounts - команда без единого целевого аккаунта
	ErrNoAccounts = errors.New("no target accounts")

	// ErrInvalidIntent - команда не прошла валидацию
	ErrInvalidIntent = errors.New("invalid order intent")
)

// ============================================================================
// ТИПЫ КОМАНД И РЕЗУЛЬТАТОВ
// ============================================================================

// OrderIntent - одна торговая команда, которую нужно исполнить на каждом
// целевом аккаунте. Неизменяема после создания: per-account мутации
// (коррекция плеча) живут в приватной копии параметров воркера.
type OrderIntent struct {
	Symbol   string
	Side     string
	Size     string
	Price    string // пустая строка = market
	Leverage int
}

// Validate проверяет команду перед разносом по аккаунтам
func (in OrderIntent) Validate() error {
	if in.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidIntent)
	}
	if in.Side != models.SideBuy && in.Side != models.SideSell {
		return fmt.Errorf("%w: side must be %q or %q, got %q", ErrInvalidIntent, models.SideBuy, models.SideSell, in.Side)
	}
	if in.Size == "" {
		return fmt.Errorf("%w: empty size", ErrInvalidIntent)
	}
	if in.Leverage <= 0 {
		return fmt.Errorf("%w: leverage must be positive, got %d", ErrInvalidIntent, in.Leverage)
	}
	return nil
}

// Target - аккаунт вместе с расшифрованными ключами
type Target struct {
	Account models.Account
	Creds   exchange.Credentials
}

// Outcome - итог исполнения команды на одном аккаунте. Ошибка одного
// аккаунта не влияет на остальные: каждый аккаунт всегда получает ровно
// один Outcome.
type Outcome struct {
	Account   models.Account
	OrderID   string // биржевой идентификатор, пуст при ошибке
	ClientOid string
	Leverage  int // фактическое плечо после возможной коррекции
	Attempts  int
	Err       error
	Elapsed   time.Duration
}

// Succeeded сообщает, был ли ордер размещён
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// StatsResult - сводка открытых ордеров одного аккаунта; ошибки опроса
// возвращаются как данные, а не прерывают обход остальных аккаунтов
type StatsResult struct {
	Account  models.Account
	Stats    *exchange.OpenOrderStats
	Attempts int
	Err      error
}

// CancelAllResult - итог массовой отмены на одном аккаунте
type CancelAllResult struct {
	Account      models.Account
	CancelledIDs []string
	Err          error
}

// ============================================================================
// ИНТЕРФЕЙС КЛИЕНТА И ФАБРИКА
// ============================================================================

// ExchangeClient - операции биржевого клиента, нужные диспетчеру.
// Реализуется exchange.Client; в тестах подменяется моком.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, params exchange.OrderParams) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) ([]string, error)
	GetOpenOrderStats(ctx context.Context, symbol string) (*exchange.OpenOrderStats, error)
}

// ClientFactory создаёт биржевой клиент для аккаунта
type ClientFactory func(creds exchange.Credentials, sandbox bool) ExchangeClient

// ============================================================================
// ДИСПЕТЧЕР
// ============================================================================

// Config - настройки диспетчера
type Config struct {
	// MaxAttempts - максимум попыток размещения на один аккаунт
	MaxAttempts int

	// InitialBackoff - базовая задержка между попытками
	InitialBackoff time.Duration

	// MaxBackoff - потолок задержки
	MaxBackoff time.Duration
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Dispatcher исполняет торговые команды на множестве аккаунтов параллельно
type Dispatcher struct {
	factory ClientFactory
	config  Config
	logger  *utils.Logger
	metrics *Metrics
}

// NewDispatcher создаёт диспетчер
func NewDispatcher(factory ClientFactory, config Config, logger *utils.Logger, metrics *Metrics) *Dispatcher {
	if config.MaxAttempts <= 0 {
		config = DefaultConfig()
	}
	return &Dispatcher{
		factory: factory,
		config:  config,
		logger:  logger.WithComponent("dispatcher"),
		metrics: metrics,
	}
}

// newClientOid генерирует клиентский идентификатор ордера. Один oid на
// команду: все аккаунты и все повторные попытки используют его же, поэтому
// дубль запроса после сетевого сбоя биржа отбрасывает сама.
func newClientOid() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// PlaceOnAccounts исполняет команду на всех целевых аккаунтах и возвращает
// по одному Outcome на аккаунт. observe (опционален) вызывается из горутины
// воркера сразу по завершении его аккаунта - итог аккаунта B доступен,
// пока аккаунт A ещё повторяет попытки.
func (d *Dispatcher) PlaceOnAccounts(ctx context.Context, intent OrderIntent, targets []Target, observe func(Outcome)) ([]Outcome, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoAccounts
	}

	clientOid := newClientOid()

	d.logger.Info("dispatching order",
		zap.String("symbol", intent.Symbol),
		zap.String("side", intent.Side),
		zap.String("client_oid", clientOid),
		zap.Int("accounts", len(targets)),
	)

	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()

			outcome := d.placeOnAccount(ctx, intent, target, clientOid)
			outcomes[i] = outcome

			if observe != nil {
				observe(outcome)
			}
		}(i, target)
	}

	wg.Wait()
	return outcomes, nil
}

// placeOnAccount исполняет команду на одном аккаунте с retry-политикой.
// Параметры попытки приватны для аккаунта: коррекция плеча здесь не видна
// воркерам других аккаунтов.
func (d *Dispatcher) placeOnAccount(ctx context.Context, intent OrderIntent, target Target, clientOid string) Outcome {
	logger := d.logger.WithAccount(target.Account.Name).WithSymbol(intent.Symbol)
	client := d.factory(target.Creds, target.Account.Sandbox)

	params := exchange.OrderParams{
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Size:      intent.Size,
		Price:     intent.Price,
		Leverage:  intent.Leverage,
		ClientOid: clientOid,
	}

	attempts := 0
	started := time.Now()

	cfg := retry.Config{
		MaxAttempts:  d.config.MaxAttempts,
		InitialDelay: d.config.InitialBackoff,
		MaxDelay:     d.config.MaxBackoff,
		RetryIf: func(err error) bool {
			c := exchange.Classify(err)
			switch c.Kind {
			case exchange.KindPermanent:
				return false
			case exchange.KindLeverageLimit:
				// Биржа назвала максимум для символа: следующая попытка
				// идёт с ним
				if c.MaxLeverage < params.Leverage {
					logger.Warn("leverage capped by exchange",
						zap.Int("requested", params.Leverage),
						zap.Int("max", c.MaxLeverage),
					)
					params.Leverage = c.MaxLeverage
					d.metrics.LeverageCorrected()
				}
				return true
			default:
				return true
			}
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("retrying order placement",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}

	orderID, err := retry.DoWithResult(ctx, func() (string, error) {
		attempts++
		d.metrics.AttemptStarted()
		return client.PlaceOrder(ctx, params)
	}, cfg)

	elapsed := time.Since(started)
	d.metrics.OutcomeRecorded(err == nil, elapsed)

	if err != nil {
		logger.Error("order placement failed",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	} else {
		logger.Info("order placed",
			zap.String("order_id", orderID),
			zap.Int("attempts", attempts),
			zap.Int("leverage", params.Leverage),
		)
	}

	return Outcome{
		Account:   target.Account,
		OrderID:   orderID,
		ClientOid: clientOid,
		Leverage:  params.Leverage,
		Attempts:  attempts,
		Err:       err,
		Elapsed:   elapsed,
	}
}

// CancelAllOnAccounts отменяет все открытые ордера на символе на каждом
// целевом аккаунте. Ошибки возвращаются по-аккаунтно.
func (d *Dispatcher) CancelAllOnAccounts(ctx context.Context, symbol string, targets []Target) ([]CancelAllResult, error) {
	if len(targets) == 0 {
		return nil, ErrNoAccounts
	}

	results := make([]CancelAllResult, len(targets))
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()

			client := d.factory(target.Creds, target.Account.Sandbox)
			ids, err := client.CancelAllOrders(ctx, symbol)
			if err != nil {
				d.logger.Error("cancel-all failed",
					zap.String("account", target.Account.Name),
					zap.String("symbol", symbol),
					zap.Error(err),
				)
			}
			results[i] = CancelAllResult{Account: target.Account, CancelledIDs: ids, Err: err}
		}(i, target)
	}

	wg.Wait()
	return results, nil
}

// CollectOpenOrderStats опрашивает открытые ордера на символе по всем
// аккаунтам. Недоступность одного аккаунта - данные, а не ошибка обхода:
// результат содержит запись по каждому аккаунту, включая неудачные.
func (d *Dispatcher) CollectOpenOrderStats(ctx context.Context, symbol string, targets []Target) ([]StatsResult, error) {
	if len(targets) == 0 {
		return nil, ErrNoAccounts
	}

	results := make([]StatsResult, len(targets))
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()

			client := d.factory(target.Creds, target.Account.Sandbox)

			attempts := 0
			cfg := retry.ConservativeConfig()
			cfg.RetryIf = func(err error) bool {
				return exchange.Classify(err).Retryable()
			}

			stats, err := retry.DoWithResult(ctx, func() (*exchange.OpenOrderStats, error) {
				attempts++
				return client.GetOpenOrderStats(ctx, symbol)
			}, cfg)

			results[i] = StatsResult{Account: target.Account, Stats: stats, Attempts: attempts, Err: err}
		}(i, target)
	}

	wg.Wait()
	return results, nil
}
