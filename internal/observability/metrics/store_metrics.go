package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StoreReasonDeadlineExceeded     = "deadline_exceeded"
	StoreReasonDBLockTimeout        = "db_lock_timeout"
	StoreReasonSerializationFailure = "serialization_failure"
	StoreReasonDeadlock             = "deadlock"
	StoreReasonUniqueViolation      = "unique_violation"
	StoreReasonNotFound             = "not_found"
	StoreReasonUnknown              = "unknown"
)

const (
	LockResourceDailySequence = "daily_sequence"
)

// StoreMetrics captures the health of the invoice save path: transaction
// latency, failure reasons and counter-row lock contention.
type StoreMetrics struct {
	saveDuration *prometheus.HistogramVec
	saveErrors   *prometheus.CounterVec
	dbLockWait   *prometheus.HistogramVec
	counterMoves *prometheus.CounterVec

	lockWaitObserver map[string]prometheus.Observer
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

// Store returns the singleton store metrics registry.
func Store() *StoreMetrics {
	return StoreWithConfig(Config{})
}

// StoreWithConfig returns the singleton store metrics registry using config labels.
func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

// ResetStoreMetricsForTest resets the store metrics singleton for tests.
func ResetStoreMetricsForTest() {
	storeMetricsOnce = sync.Once{}
	storeMetrics = nil
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "invoicer"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	saveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "invoicer_invoice_save_duration_seconds",
		Help:        "Invoice save transaction latency, lock wait included.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"operation"})
	saveErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicer_invoice_save_errors_total",
		Help:        "Invoice save failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "invoicer_db_lock_wait_seconds",
		Help:        "Time spent acquiring SELECT FOR UPDATE row locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})
	counterMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicer_sequence_counter_moves_total",
		Help:        "Daily sequence counter increments by source.",
		ConstLabels: constLabels,
	}, []string{"source"})

	registerer.MustRegister(
		saveDuration,
		saveErrors,
		dbLockWait,
		counterMoves,
	)

	return &StoreMetrics{
		saveDuration: saveDuration,
		saveErrors:   saveErrors,
		dbLockWait:   dbLockWait,
		counterMoves: counterMoves,
		lockWaitObserver: map[string]prometheus.Observer{
			LockResourceDailySequence: dbLockWait.WithLabelValues(LockResourceDailySequence),
		},
	}
}

// ObserveSaveDuration records save transaction latency in seconds.
func (m *StoreMetrics) ObserveSaveDuration(operation string, duration time.Duration) {
	if m == nil || m.saveDuration == nil {
		return
	}
	m.saveDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncSaveError increments the save error counter with classification.
func (m *StoreMetrics) IncSaveError(operation string, err error) {
	if m == nil || err == nil || m.saveErrors == nil {
		return
	}
	m.saveErrors.WithLabelValues(operation, ClassifyStoreReason(err)).Inc()
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *StoreMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// IncCounterMove increments the counter movement total for a source.
func (m *StoreMetrics) IncCounterMove(source string) {
	if m == nil || m.counterMoves == nil {
		return
	}
	m.counterMoves.WithLabelValues(source).Inc()
}

// ClassifyStoreReason maps store errors to low-cardinality reasons.
func ClassifyStoreReason(err error) string {
	if err == nil {
		return StoreReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StoreReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoreReasonNotFound
	}
	if hasPGCode(err, "55P03") {
		return StoreReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return StoreReasonSerializationFailure
	}
	if hasPGCode(err, "40P01") {
		return StoreReasonDeadlock
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return StoreReasonUniqueViolation
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "Error 1062"):
		return StoreReasonUniqueViolation
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "Error 1205"):
		return StoreReasonDBLockTimeout
	case strings.Contains(msg, "Error 1213"):
		return StoreReasonDeadlock
	}
	return StoreReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
