package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout attempts by result (success, empty_cart, insufficient_stock, conflict, not_found, error).
	CheckoutTotal *prometheus.CounterVec
	// CheckoutRetries counts checkouts replayed after a lost guarded update.
	CheckoutRetries prometheus.Counter
	// CouponValidationTotal counts coupon validations by outcome.
	CouponValidationTotal *prometheus.CounterVec
	// DiscountAmountTotal sums granted discounts in currency units by source (promotion, coupon).
	DiscountAmountTotal *prometheus.CounterVec
	// StockRejectionsTotal counts cart edits and checkouts refused for insufficient stock.
	StockRejectionsTotal prometheus.Counter
	// OrderValue records committed order totals.
	OrderValue prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by result.",
		}, []string{"result"})
		CheckoutRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_retries_total",
			Help:      "Checkouts retried after a concurrent modification.",
		})
		CouponValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_validation_total",
			Help:      "Count of coupon validations by outcome.",
		}, []string{"result"})
		DiscountAmountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_amount_total",
			Help:      "Sum of discounts granted on committed orders.",
		}, []string{"source"})
		StockRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_stock_rejections_total",
			Help:      "Cart edits and checkouts rejected because of insufficient stock.",
		})
		OrderValue = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_total_amount",
			Help:      "Distribution of committed order totals.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
		})

		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutRetries, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CheckoutRetries = v
			}
		})
		mustRegisterCollector(reg, CouponValidationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponValidationTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountAmountTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountAmountTotal = v
			}
		})
		mustRegisterCollector(reg, StockRejectionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockRejectionsTotal = v
			}
		})
		mustRegisterCollector(reg, OrderValue, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				OrderValue = v
			}
		})
	})
}

// The helpers below are no-ops until MustRegisterDomainMetrics has run, so
// packages can record outcomes without caring whether metrics are enabled.

// RecordCheckout increments CheckoutTotal for result.
func RecordCheckout(result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// RecordCheckoutRetry increments CheckoutRetries.
func RecordCheckoutRetry() {
	if CheckoutRetries != nil {
		CheckoutRetries.Inc()
	}
}

// RecordCouponValidation increments CouponValidationTotal for result.
func RecordCouponValidation(result string) {
	if CouponValidationTotal != nil {
		CouponValidationTotal.WithLabelValues(result).Inc()
	}
}

// RecordDiscount adds amount to DiscountAmountTotal for source.
func RecordDiscount(source string, amount float64) {
	if DiscountAmountTotal != nil && amount > 0 {
		DiscountAmountTotal.WithLabelValues(source).Add(amount)
	}
}

// RecordStockRejection increments StockRejectionsTotal.
func RecordStockRejection() {
	if StockRejectionsTotal != nil {
		StockRejectionsTotal.Inc()
	}
}

// ObserveOrderValue records a committed order total.
func ObserveOrderValue(total float64) {
	if OrderValue != nil {
		OrderValue.Observe(total)
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
