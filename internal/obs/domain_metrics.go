package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// FingerprintTotal counts fingerprint issuance outcomes.
	FingerprintTotal *prometheus.CounterVec
	// NoChargeTotal counts no-charge submissions by outcome.
	NoChargeTotal *prometheus.CounterVec
	// RelayTotal counts gateway relay callbacks by outcome.
	RelayTotal *prometheus.CounterVec
	// OrderSaveFailures counts ignored session-store write failures.
	OrderSaveFailures prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		FingerprintTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fingerprint_total",
			Help:      "Count of fingerprint issuance outcomes.",
		}, []string{"result"})
		NoChargeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nocharge_total",
			Help:      "Count of no-charge order submissions by outcome.",
		}, []string{"result"})
		RelayTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_total",
			Help:      "Count of gateway relay callbacks by outcome.",
		}, []string{"result"})
		OrderSaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_save_failures_total",
			Help:      "Session store write failures ignored by the payment flow.",
		})

		registerOrReuse(reg, FingerprintTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FingerprintTotal = v
			}
		})
		registerOrReuse(reg, NoChargeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NoChargeTotal = v
			}
		})
		registerOrReuse(reg, RelayTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RelayTotal = v
			}
		})
		registerOrReuse(reg, OrderSaveFailures, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				OrderSaveFailures = v
			}
		})
	})
}
