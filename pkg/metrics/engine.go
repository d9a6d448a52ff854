package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks operation outcomes and the engine's headline state.
type EngineMetrics struct {
	ops            *prometheus.CounterVec
	totalSupply    prometheus.Gauge
	escrowHeld     prometheus.Gauge
	accruedFees    prometheus.Gauge
	activeListings prometheus.Gauge
	openOrders     prometheus.Gauge
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
// A nil registerer yields a no-op instance, matching how optional deps are
// wired elsewhere.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_operations_total",
		Help: "Engine operations by name and result.",
	}, []string{"op", "result"})
	totalSupply := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_total_supply",
		Help: "Current total token supply in base units.",
	})
	escrowHeld := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_escrow_held",
		Help: "Base units held in marketplace escrow for open orders.",
	})
	accruedFees := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_accrued_fees",
		Help: "Platform fees accumulated and not yet withdrawn.",
	})
	activeListings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_active_listings",
		Help: "Listings currently open for orders.",
	})
	openOrders := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_open_orders",
		Help: "Orders funded but not yet completed.",
	})
	reg.MustRegister(ops, totalSupply, escrowHeld, accruedFees, activeListings, openOrders)
	return &EngineMetrics{
		ops:            ops,
		totalSupply:    totalSupply,
		escrowHeld:     escrowHeld,
		accruedFees:    accruedFees,
		activeListings: activeListings,
		openOrders:     openOrders,
	}
}

// ObserveOp counts one operation outcome, e.g. ("mint", "ok") or
// ("create_order", "INSUFFICIENT_BALANCE").
func (m *EngineMetrics) ObserveOp(op, result string) {
	if m == nil || m.ops == nil {
		return
	}
	m.ops.WithLabelValues(normalizeLabel(op), normalizeLabel(result)).Inc()
}

// SetTotalSupply records the ledger's total supply after a mint or burn.
func (m *EngineMetrics) SetTotalSupply(v uint64) {
	if m == nil || m.totalSupply == nil {
		return
	}
	m.totalSupply.Set(float64(v))
}

// SetEscrowHeld records the escrow balance backing open orders.
func (m *EngineMetrics) SetEscrowHeld(v uint64) {
	if m == nil || m.escrowHeld == nil {
		return
	}
	m.escrowHeld.Set(float64(v))
}

// SetAccruedFees records the withdrawable platform fee balance.
func (m *EngineMetrics) SetAccruedFees(v uint64) {
	if m == nil || m.accruedFees == nil {
		return
	}
	m.accruedFees.Set(float64(v))
}

// SetActiveListings records the number of listings open for orders.
func (m *EngineMetrics) SetActiveListings(v int) {
	if m == nil || m.activeListings == nil {
		return
	}
	m.activeListings.Set(float64(v))
}

// SetOpenOrders records the number of funded, uncompleted orders.
func (m *EngineMetrics) SetOpenOrders(v int) {
	if m == nil || m.openOrders == nil {
		return
	}
	m.openOrders.Set(float64(v))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
