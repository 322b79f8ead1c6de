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
	StoreOperationIngestConfiguration = "ingest_configuration"
	StoreOperationIngestConsumption   = "ingest_consumption"
	StoreOperationInvoice             = "generate_invoice"
	StoreOperationCreate              = "create"
	StoreOperationReset               = "reset"
	StoreOperationLoad                = "load"
	StoreOperationSave                = "save"
)

const (
	AuditErrorReasonDeadlineExceeded = "deadline_exceeded"
	AuditErrorReasonUniqueViolation  = "unique_violation"
	AuditErrorReasonLockTimeout      = "db_lock_timeout"
	AuditErrorReasonUnknown          = "unknown"
)

// StoreMetrics captures data store health signals.
type StoreMetrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	diagnostics  *prometheus.CounterVec
	saveFailures prometheus.Counter
	auditErrors  *prometheus.CounterVec
	entities     *prometheus.GaugeVec
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

// StoreWithConfig returns the singleton store metrics registry using config labels.
func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

// NewStoreMetricsForTest registers store metrics on a private registry.
func NewStoreMetricsForTest(registerer prometheus.Registerer) *StoreMetrics {
	return newStoreMetrics(registerer, Config{ServiceName: "datalake", Environment: "test"})
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabels(cfg)

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "datalake_store_operations_total",
		Help:        "Data store operations by result status.",
		ConstLabels: constLabels,
	}, []string{"operation", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "datalake_store_operation_duration_seconds",
		Help:        "Data store operation latency including persistence.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"operation"})
	diagnostics := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "datalake_store_diagnostics_total",
		Help:        "Record-level issues collected while ingesting feeds.",
		ConstLabels: constLabels,
	}, []string{"operation"})
	saveFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "datalake_store_save_failures_total",
		Help:        "State file writes that failed.",
		ConstLabels: constLabels,
	})
	auditErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "datalake_audit_write_errors_total",
		Help:        "Audit trail writes that failed by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	entities := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "datalake_store_entities",
		Help:        "Entities currently held by the data store.",
		ConstLabels: constLabels,
	}, []string{"kind"})

	registerer.MustRegister(operations, duration, diagnostics, saveFailures, auditErrors, entities)

	return &StoreMetrics{
		operations:   operations,
		duration:     duration,
		diagnostics:  diagnostics,
		saveFailures: saveFailures,
		auditErrors:  auditErrors,
		entities:     entities,
	}
}

// ObserveOperation records one finished store operation.
func (m *StoreMetrics) ObserveOperation(operation, status string, elapsed time.Duration, diagnostics int) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, normalizeStatus(status)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if diagnostics > 0 {
		m.diagnostics.WithLabelValues(operation).Add(float64(diagnostics))
	}
}

func (m *StoreMetrics) IncSaveFailure() {
	if m == nil {
		return
	}
	m.saveFailures.Inc()
}

// IncAuditError counts a failed audit write by classified reason.
func (m *StoreMetrics) IncAuditError(err error) {
	if m == nil || err == nil {
		return
	}
	m.auditErrors.WithLabelValues(ClassifyAuditError(err)).Inc()
}

// SetEntityCount publishes the current size of one collection.
func (m *StoreMetrics) SetEntityCount(kind string, count int) {
	if m == nil {
		return
	}
	m.entities.WithLabelValues(kind).Set(float64(count))
}

// ClassifyAuditError maps database errors to low-cardinality reasons.
func ClassifyAuditError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return AuditErrorReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return AuditErrorReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return AuditErrorReasonUniqueViolation
		case "55P03":
			return AuditErrorReasonLockTimeout
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "database is locked") {
		return AuditErrorReasonLockTimeout
	}
	return AuditErrorReasonUnknown
}

func normalizeStatus(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "unknown"
	}
	return status
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "datalake"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
