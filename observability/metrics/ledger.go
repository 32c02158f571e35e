package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks revenue flowing through the split and claim engines.
type LedgerMetrics struct {
	collected   *prometheus.CounterVec
	distributed *prometheus.CounterVec
	pool        *prometheus.GaugeVec
	unclaimed   *prometheus.GaugeVec
	snapshots   *prometheus.CounterVec
	withdrawals prometheus.Counter
	withdrawn   prometheus.Counter
	rejections  *prometheus.CounterVec
	collections prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily registered ledger collectors.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			collected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nameshare_collected_total",
				Help: "Converted revenue collected per collection.",
			}, []string{"collection"}),
			distributed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nameshare_class_distributed_total",
				Help: "Revenue assigned to each stakeholder class.",
			}, []string{"class"}),
			pool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "nameshare_pool",
				Help: "Undistributed pool per snapshot ledger.",
			}, []string{"ledger"}),
			unclaimed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "nameshare_unclaimed_pool",
				Help: "Division remainder carried into the next snapshot.",
			}, []string{"ledger"}),
			snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nameshare_snapshots_total",
				Help: "Snapshots taken per ledger.",
			}, []string{"ledger"}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nameshare_withdrawals_total",
				Help: "Completed withdrawals.",
			}),
			withdrawn: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nameshare_withdrawn_total",
				Help: "Value paid out by withdrawals.",
			}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nameshare_rejections_total",
				Help: "Rejected operations by operation and reason.",
			}, []string{"operation", "reason"}),
			collections: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "nameshare_collections",
				Help: "Registered collections.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.collected,
			ledgerRegistry.distributed,
			ledgerRegistry.pool,
			ledgerRegistry.unclaimed,
			ledgerRegistry.snapshots,
			ledgerRegistry.withdrawals,
			ledgerRegistry.withdrawn,
			ledgerRegistry.rejections,
			ledgerRegistry.collections,
		)
	})
	return ledgerRegistry
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func label(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

func (m *LedgerMetrics) ObserveCollected(collection string, amount *big.Int) {
	if m == nil {
		return
	}
	m.collected.WithLabelValues(label(collection)).Add(toFloat(amount))
}

func (m *LedgerMetrics) ObserveDistributed(class string, amount *big.Int) {
	if m == nil {
		return
	}
	m.distributed.WithLabelValues(label(class)).Add(toFloat(amount))
}

func (m *LedgerMetrics) SetPool(ledger string, pool, unclaimed *big.Int) {
	if m == nil {
		return
	}
	m.pool.WithLabelValues(label(ledger)).Set(toFloat(pool))
	m.unclaimed.WithLabelValues(label(ledger)).Set(toFloat(unclaimed))
}

func (m *LedgerMetrics) ObserveSnapshot(ledger string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(label(ledger)).Inc()
}

func (m *LedgerMetrics) ObserveWithdrawal(amount *big.Int) {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
	m.withdrawn.Add(toFloat(amount))
}

func (m *LedgerMetrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(label(operation), label(reason)).Inc()
}

func (m *LedgerMetrics) SetCollections(n int) {
	if m == nil {
		return
	}
	m.collections.Set(float64(n))
}

// Rejections exposes the rejection counter for assertions.
func (m *LedgerMetrics) Rejections() *prometheus.CounterVec { return m.rejections }

// Snapshots exposes the snapshot counter for assertions.
func (m *LedgerMetrics) Snapshots() *prometheus.CounterVec { return m.snapshots }

// Withdrawals exposes the withdrawal counter for assertions.
func (m *LedgerMetrics) Withdrawals() prometheus.Counter { return m.withdrawals }

// Pool exposes the pool gauge for assertions.
func (m *LedgerMetrics) Pool() *prometheus.GaugeVec { return m.pool }
