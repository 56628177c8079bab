package ratelimit

import (
	"context"
	"errors"
)

// Semaphore - счётный семафор для ограничения числа одновременных
// запросов к API биржи
//
// Один семафор разделяется всеми аккаунтами процесса: KuCoin лимитирует
// запросы по IP, а не по ключу, поэтому ограничение должно быть общим.
//
// Правила использования:
// - Разрешение захватывается перед каждым HTTP запросом (place/cancel/query)
// - Разрешение освобождается сразу после получения ответа (успех или ошибка)
// - Разрешение НЕ удерживается между retry попытками
//
// Использование:
//
//	sem := ratelimit.NewSemaphore(25) // максимум 25 запросов одновременно
//	if err := sem.Acquire(ctx); err != nil {
//	    return err // контекст отменён во время ожидания
//	}
//	defer sem.Release()
//	// выполняем запрос к бирже
type Semaphore struct {
	permits chan struct{}
}

// ErrReleaseWithoutAcquire возвращается при Release без предшествующего Acquire
var ErrReleaseWithoutAcquire = errors.New("semaphore: release without acquire")

// DefaultCapacity - ёмкость семафора по умолчанию
// Соответствует лимиту KuCoin Futures API на одновременные запросы с одного IP
const DefaultCapacity = 25

// NewSemaphore создаёт семафор с указанной ёмкостью
// capacity <= 0 заменяется на DefaultCapacity
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Semaphore{
		permits: make(chan struct{}, capacity),
	}
}

// Acquire блокирует до получения разрешения или отмены контекста
//
// Возвращает:
//   - nil: разрешение получено, вызывающий ОБЯЗАН вызвать Release
//   - ctx.Err(): контекст отменён во время ожидания
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire пытается получить разрешение без блокировки
// Возвращает false если все разрешения заняты
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release освобождает ранее захваченное разрешение
//
// Паникует при Release без Acquire - это нарушение контракта
// использования, а не состояние времени выполнения.
func (s *Semaphore) Release() {
	select {
	case <-s.permits:
	default:
		panic(ErrReleaseWithoutAcquire)
	}
}

// InFlight возвращает текущее количество захваченных разрешений
// Полезно для мониторинга и тестов
func (s *Semaphore) InFlight() int {
	return len(s.permits)
}

// Capacity возвращает максимальное количество одновременных разрешений
func (s *Semaphore) Capacity() int {
	return cap(s.permits)
}
