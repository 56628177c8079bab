package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// ============================================================================
// ОШИБКИ БИРЖИ И ИХ КЛАССИФИКАЦИЯ
// ============================================================================

var (
	// ErrRequestTimeout - запрос не уложился в request timeout
	ErrRequestTimeout = errors.New("request timed out")

	// ErrMalformedResponse - биржа вернула тело, которое не парсится как JSON
	// (обычно HTML-страница от rate limiter'а)
	ErrMalformedResponse = errors.New("malformed response body")
)

// ExchangeError - отказ, который биржа вернула явно: либо HTTP-статусом,
// либо кодом в теле ответа при HTTP 200.
type ExchangeError struct {
	// Status - HTTP статус ответа
	Status int

	// Code - код из тела ответа ("200000" = успех, всё остальное = отказ)
	Code string

	// Message - сообщение из тела ответа
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange rejected request: status=%d code=%s msg=%q", e.Status, e.Code, e.Message)
}

// ============================================================================
// КЛАССИФИКАТОР
// ============================================================================

// ErrorKind - категория отказа, определяющая поведение retry-политики.
type ErrorKind int

const (
	// KindTransient - временный сбой (5xx, 429, обрыв сети), повторяем с backoff
	KindTransient ErrorKind = iota

	// KindTimeout - превышен request timeout, повторяем
	KindTimeout

	// KindLeverageLimit - плечо выше максимума для символа, повторяем
	// со скорректированным плечом
	KindLeverageLimit

	// KindPermanent - отказ по существу (401, отклонение в теле 200-ответа),
	// повтор бессмысленен
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindLeverageLimit:
		return "leverage_limit"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classification - результат разбора ошибки биржи.
type Classification struct {
	Kind ErrorKind

	// MaxLeverage заполнен только для KindLeverageLimit: максимальное
	// плечо, которое биржа готова принять для символа
	MaxLeverage int
}

// Retryable сообщает, имеет ли смысл повторная попытка.
func (c Classification) Retryable() bool {
	return c.Kind != KindPermanent
}

// leverageLimitRe вытаскивает максимум плеча из сообщения биржи вида
// "The leverage cannot be greater than 20".
var leverageLimitRe = regexp.MustCompile(`The leverage cannot be greater than (\d+)`)

// Classify раскладывает ошибку вызова биржи по категориям. Порядок проверок
// важен: отказ по плечу тоже приходит с HTTP 200 в теле, поэтому он
// проверяется раньше общего правила "отклонение в 200-ответе = permanent".
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindTransient}
	}

	// Таймауты: контекст, net.Error, наш sentinel
	if errors.Is(err, ErrRequestTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: KindTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: KindTimeout}
	}

	var exchErr *ExchangeError
	if errors.As(err, &exchErr) {
		// Ограничение плеча: биржа называет допустимый максимум в сообщении
		if m := leverageLimitRe.FindStringSubmatch(exchErr.Message); m != nil {
			max, convErr := strconv.Atoi(m[1])
			if convErr == nil && max > 0 {
				return Classification{Kind: KindLeverageLimit, MaxLeverage: max}
			}
		}

		// Проблемы авторизации не лечатся повтором
		if exchErr.Status == 401 || strings.Contains(exchErr.Message, "401") || strings.Contains(exchErr.Code, "401") {
			return Classification{Kind: KindPermanent}
		}

		// HTTP 200 с кодом отказа в теле: биржа поняла запрос и отказала
		// по существу, повтор даст тот же ответ
		if exchErr.Status == 200 {
			return Classification{Kind: KindPermanent}
		}

		// 429, 5xx и прочее - временное
		return Classification{Kind: KindTransient}
	}

	// Сетевые обрывы, malformed body и всё неопознанное - transient
	return Classification{Kind: KindTransient}
}
