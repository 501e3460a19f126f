package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every series with the running service.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes domain counters for the ledgers and the order workflow.
type Metrics struct {
	creditMovements   *prometheus.CounterVec
	creditRejections  *prometheus.CounterVec
	orderTransitions  *prometheus.CounterVec
	stockRejections   *prometheus.CounterVec
	notificationSends *prometheus.CounterVec
}

var (
	domainOnce    sync.Once
	domainMetrics *Metrics
)

// New returns the process-wide domain metrics registered on the default registry.
func New(cfg Config) *Metrics {
	domainOnce.Do(func() {
		domainMetrics = NewWithRegistry(prometheus.DefaultRegisterer, cfg)
	})
	return domainMetrics
}

// NewWithRegistry registers a fresh set of instruments on registerer.
func NewWithRegistry(registerer prometheus.Registerer, cfg Config) *Metrics {
	constLabels := constLabels(cfg)
	m := &Metrics{
		creditMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bistro_credit_movements_total",
			Help:        "Credit ledger movements by kind and resulting status.",
			ConstLabels: constLabels,
		}, []string{"kind", "status"}),
		creditRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bistro_credit_rejections_total",
			Help:        "Credit operations rejected by ledger rules.",
			ConstLabels: constLabels,
		}, []string{"operation", "reason"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bistro_order_transitions_total",
			Help:        "Order lifecycle transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		stockRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bistro_stock_rejections_total",
			Help:        "Stock ledger operations rejected for insufficient stock.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		notificationSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bistro_notification_dispatch_total",
			Help:        "Notification dispatch attempts by channel and outcome.",
			ConstLabels: constLabels,
		}, []string{"channel", "outcome"}),
	}
	if registerer != nil {
		registerer.MustRegister(
			m.creditMovements,
			m.creditRejections,
			m.orderTransitions,
			m.stockRejections,
			m.notificationSends,
		)
	}
	return m
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "bistro"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{"service": serviceName, "env": environment}
}

func (m *Metrics) RecordCreditMovement(kind, status string) {
	if m == nil {
		return
	}
	m.creditMovements.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordCreditRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.creditRejections.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) RecordOrderTransition(from, to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordStockRejection(operation string) {
	if m == nil {
		return
	}
	m.stockRejections.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordNotification(channel, outcome string) {
	if m == nil {
		return
	}
	m.notificationSends.WithLabelValues(channel, outcome).Inc()
}
