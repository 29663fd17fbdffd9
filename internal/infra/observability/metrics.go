package observability

import (
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	transactionsPosted *prometheus.CounterVec
	reversalsTotal     *prometheus.CounterVec
	conflictRetries    *prometheus.CounterVec
	autopayOutcomes    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrack_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		transactionsPosted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_transactions_posted_total",
				Help: "Total ledger transactions posted, by type.",
			},
			[]string{"type"},
		),
		reversalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_reversals_total",
				Help: "Total transaction reversals, by outcome.",
			},
			[]string{"outcome"},
		),
		conflictRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_conflict_retries_total",
				Help: "Optimistic-concurrency conflicts retried, by entity kind.",
			},
			[]string{"kind"},
		),
		autopayOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_autopay_total",
				Help: "Auto-pay attempts, by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrTransactionPosted counts a posted transaction by type.
func (m *Metrics) IncrTransactionPosted(txType domain.TransactionType) {
	m.transactionsPosted.WithLabelValues(string(txType)).Inc()
}

// IncrReversal counts a reversal outcome ("full" or "partial").
func (m *Metrics) IncrReversal(outcome string) {
	m.reversalsTotal.WithLabelValues(outcome).Inc()
}

// IncrConflictRetry counts a revision conflict retry for an entity kind.
func (m *Metrics) IncrConflictRetry(kind domain.EntityKind) {
	m.conflictRetries.WithLabelValues(string(kind)).Inc()
}

// IncrAutopay counts an auto-pay attempt result ("paid" or "skipped").
func (m *Metrics) IncrAutopay(result string) {
	m.autopayOutcomes.WithLabelValues(result).Inc()
}

// GetLedgerSnapshot returns a snapshot of ledger metrics suitable for
// the GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	expenses := getCounterValue(m.transactionsPosted, string(domain.TxExpense))
	incomes := getCounterValue(m.transactionsPosted, string(domain.TxIncome))
	payments := getCounterValue(m.transactionsPosted, string(domain.TxPayment))
	fullReversals := getCounterValue(m.reversalsTotal, "full")
	partialReversals := getCounterValue(m.reversalsTotal, "partial")
	autopayPaid := getCounterValue(m.autopayOutcomes, "paid")
	autopaySkipped := getCounterValue(m.autopayOutcomes, "skipped")

	total := expenses + incomes + payments
	reversalRate := float64(0)
	if total > 0 {
		reversalRate = (fullReversals + partialReversals) / total
	}

	return &domain.LedgerMetrics{
		ExpensesPosted:   int64(expenses),
		IncomesPosted:    int64(incomes),
		PaymentsPosted:   int64(payments),
		FullReversals:    int64(fullReversals),
		PartialReversals: int64(partialReversals),
		ReversalRate:     reversalRate,
		AutopayPaid:      int64(autopayPaid),
		AutopaySkipped:   int64(autopaySkipped),
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
