package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики бронирований и платежей
	BookingsCreated     int64
	BookingsCompleted   int64
	BookingsCancelled   int64
	PaymentsRecorded    int64
	SettlementConflicts int64
	PaymentsReconciled  int64
	ObligationsOverdue  int64
	LastPaymentTime     time.Time

	// Метрики ошибок
	ErrorCount     int64
	LastErrorTime  time.Time
	ErrorTypes     map[string]int64
	CriticalErrors int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// NewMetrics создает отдельный набор метрик
func NewMetrics() *Metrics {
	return &Metrics{
		ErrorTypes: make(map[string]int64),
	}
}

// RecordRequest записывает метрики запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
	}
}

// RecordBookingEvent записывает изменение жизненного цикла бронирования
func (m *Metrics) RecordBookingEvent(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event {
	case "create":
		m.BookingsCreated++
	case "complete":
		m.BookingsCompleted++
	case "cancel":
		m.BookingsCancelled++
	}
}

// RecordPayment записывает результат попытки зафиксировать платеж
func (m *Metrics) RecordPayment(conflict bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conflict {
		m.SettlementConflicts++
		return
	}
	m.PaymentsRecorded++
	m.LastPaymentTime = time.Now()
}

// RecordReconciled записывает количество сверенных платежей
func (m *Metrics) RecordReconciled(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PaymentsReconciled += int64(n)
}

// RecordOverdue записывает количество просроченных строк
func (m *Metrics) RecordOverdue(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ObligationsOverdue += int64(n)
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(kind)
}

// RecordCriticalError записывает метрики критической ошибки
func (m *Metrics) RecordCriticalError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CriticalErrors++
	m.recordErrorLocked(kind)
}

func (m *Metrics) recordErrorLocked(kind string) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()
	if kind == "" {
		kind = "unknown"
	}
	m.ErrorTypes[kind]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_requests":       m.TotalRequests,
		"failed_requests":      m.FailedRequests,
		"average_latency":      m.AverageLatency.String(),
		"bookings_created":     m.BookingsCreated,
		"bookings_completed":   m.BookingsCompleted,
		"bookings_cancelled":   m.BookingsCancelled,
		"payments_recorded":    m.PaymentsRecorded,
		"settlement_conflicts": m.SettlementConflicts,
		"payments_reconciled":  m.PaymentsReconciled,
		"obligations_overdue":  m.ObligationsOverdue,
		"error_count":          m.ErrorCount,
		"critical_errors":      m.CriticalErrors,
		"last_error_time":      m.LastErrorTime,
		"error_types":          errorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.BookingsCreated = 0
	m.BookingsCompleted = 0
	m.BookingsCancelled = 0
	m.PaymentsRecorded = 0
	m.SettlementConflicts = 0
	m.PaymentsReconciled = 0
	m.ObligationsOverdue = 0
	m.ErrorCount = 0
	m.CriticalErrors = 0
	m.ErrorTypes = make(map[string]int64)
}
