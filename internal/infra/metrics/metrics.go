package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunnerCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runner_cycles_total",
		Help: "Циклы опроса ленты по результату",
	}, []string{"result"})
	RunnerEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runner_events_total",
		Help: "События, полученные из ленты",
	}, []string{"kind"})
	RunnerFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runner_fetch_failures_total",
		Help: "Неудачные попытки догрузки истории и заказов",
	}, []string{"operation"})

	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "handler_duration_seconds",
		Help:    "Длительность обработки события",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})
	HandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handler_errors_total",
		Help: "Ошибки обработчиков событий",
	}, []string{"handler"})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Отправленные уведомления по категориям",
	}, []string{"kind"})
	ProductsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "products_delivered_total",
		Help: "Выданные покупателям товары",
	})
	LotStateChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lot_state_changes_total",
		Help: "Отключения и включения лотов",
	}, []string{"action"})
	LotRaises = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lot_raises_total",
		Help: "Попытки поднять лоты по результату",
	}, []string{"result"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RunnerCycles,
		RunnerEvents,
		RunnerFetchFailures,
		HandlerDuration,
		HandlerErrors,
		BotSendErrors,
		NotificationsSent,
		ProductsDelivered,
		LotStateChanges,
		LotRaises,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveHandler записывает длительность и результат обработчика события.
func ObserveHandler(handler string, start time.Time, err error) {
	HandlerDuration.WithLabelValues(handler).Observe(time.Since(start).Seconds())
	if err != nil {
		HandlerErrors.WithLabelValues(handler).Inc()
	}
}
