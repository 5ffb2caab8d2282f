package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TaxCalculationsTotal counts tax calculations by pricing mode and outcome.
	TaxCalculationsTotal *prometheus.CounterVec
	// TaxLineItemsTotal counts line items taxed by pricing mode.
	TaxLineItemsTotal *prometheus.CounterVec
	// DiscountApportionmentsTotal counts discount apportionment outcomes.
	DiscountApportionmentsTotal *prometheus.CounterVec
	// ApportionRemainderAdjustments counts shares changed by the rounding remainder pass.
	ApportionRemainderAdjustments prometheus.Counter
	// JurisdictionCacheTotal counts jurisdiction cache lookups by result.
	JurisdictionCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TaxCalculationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_calculations_total",
			Help:      "Count of tax calculations by pricing mode and outcome.",
		}, []string{"mode", "result"}))
		TaxLineItemsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_line_items_total",
			Help:      "Count of line items taxed by pricing mode.",
		}, []string{"mode"}))
		DiscountApportionmentsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_apportionments_total",
			Help:      "Count of discount apportionment outcomes.",
		}, []string{"result"}))
		ApportionRemainderAdjustments = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apportion_remainder_adjustments_total",
			Help:      "Number of shares adjusted while distributing rounding remainders.",
		}))
		JurisdictionCacheTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jurisdiction_cache_total",
			Help:      "Jurisdiction cache lookups by result.",
		}, []string{"result"}))
	})
}
