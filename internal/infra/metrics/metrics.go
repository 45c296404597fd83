package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DispatchCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_cycle_seconds",
		Help:    "Длительность цикла рассылки",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})
	DispatchLastCycle = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_last_cycle_timestamp_seconds",
		Help: "Время завершения последнего цикла рассылки",
	})
	DispatchUsersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_users_total",
		Help: "Итоги обработки пользователей в цикле рассылки",
	}, []string{"outcome"})
	DispatchMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_messages_total",
		Help: "Отправленные уведомления по видам активности",
	}, []string{"kind", "status"})
	DispatchFilteredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_filtered_total",
		Help: "Активности, отброшенные фильтром, по причинам",
	}, []string{"reason"})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_commands_total",
		Help: "Команды пользователей в чате",
	}, []string{"platform", "command", "status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DispatchCycleSeconds,
		DispatchLastCycle,
		DispatchUsersTotal,
		DispatchMessagesTotal,
		DispatchFilteredTotal,
		CommandsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
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

// ObserveDispatchCycle фиксирует длительность и время завершения цикла.
func ObserveDispatchCycle(start time.Time) {
	DispatchCycleSeconds.Observe(time.Since(start).Seconds())
	DispatchLastCycle.SetToCurrentTime()
}

// IncDispatchUser увеличивает счётчик итогов обработки пользователя.
func IncDispatchUser(outcome string) {
	DispatchUsersTotal.WithLabelValues(outcome).Inc()
}

// IncDispatchMessage увеличивает счётчик уведомлений.
func IncDispatchMessage(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DispatchMessagesTotal.WithLabelValues(kind, status).Inc()
}

// AddDispatchFiltered учитывает отброшенные фильтром активности.
func AddDispatchFiltered(reason string, n int) {
	DispatchFilteredTotal.WithLabelValues(reason).Add(float64(n))
}

// IncCommand увеличивает счётчик команд.
func IncCommand(platform, command string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CommandsTotal.WithLabelValues(platform, command, status).Inc()
}
