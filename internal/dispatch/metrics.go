package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kucoinmanager/pkg/ratelimit"
)

// Metrics - счётчики исполнения ордеров. Nil-receiver безопасен: диспетчер
// без метрик (в тестах) работает как обычно.
type Metrics struct {
	attemptsTotal       prometheus.Counter
	outcomesTotal       *prometheus.CounterVec
	executionSeconds    prometheus.Histogram
	leverageCorrections prometheus.Counter
}

// NewMetrics регистрирует метрики диспетчера в реестре
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kucoinmanager",
			Subsystem: "dispatch",
			Name:      "order_attempts_total",
			Help:      "Total order placement attempts, including retries",
		}),
		outcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kucoinmanager",
			Subsystem: "dispatch",
			Name:      "order_outcomes_total",
			Help:      "Per-account order outcomes by status",
		}, []string{"status"}),
		executionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kucoinmanager",
			Subsystem: "dispatch",
			Name:      "order_execution_seconds",
			Help:      "Wall time of one account's order placement, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		leverageCorrections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kucoinmanager",
			Subsystem: "dispatch",
			Name:      "leverage_corrections_total",
			Help:      "Orders retried with exchange-capped leverage",
		}),
	}
}

// RegisterInFlightGauge публикует текущую занятость семафора запросов
func RegisterInFlightGauge(reg prometheus.Registerer, limiter *ratelimit.Semaphore) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kucoinmanager",
		Subsystem: "dispatch",
		Name:      "requests_in_flight",
		Help:      "Exchange requests currently holding a semaphore slot",
	}, func() float64 {
		return float64(limiter.InFlight())
	})
}

// AttemptStarted учитывает одну попытку размещения
func (m *Metrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.attemptsTotal.Inc()
}

// OutcomeRecorded учитывает итог исполнения на одном аккаунте
func (m *Metrics) OutcomeRecorded(ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "fail"
	}
	m.outcomesTotal.WithLabelValues(status).Inc()
	m.executionSeconds.Observe(elapsed.Seconds())
}

// LeverageCorrected учитывает коррекцию плеча по ответу биржи
func (m *Metrics) LeverageCorrected() {
	if m == nil {
		return
	}
	m.leverageCorrections.Inc()
}
