// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Listener outcomes, one per handled delivery.
const (
	outcomeInvoiced  = "invoiced"
	outcomeErrored   = "errored"
	outcomeStale     = "stale"
	outcomeInvalid   = "invalid"
	outcomeDuplicate = "duplicate"
	outcomeAnswered  = "answered"
)

// Metrics counts listener outcomes. A nil *Metrics records nothing.
type Metrics struct {
	orders   *prometheus.CounterVec
	duration prometheus.Histogram
	acks     *prometheus.CounterVec
}

// NewMetrics creates the listener collectors and registers them with
// registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shockpay",
			Name:      "orders_total",
			Help:      "Order deliveries seen by the listener, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shockpay",
			Name:      "order_duration_seconds",
			Help:      "Time from accepting an order to writing its response.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shockpay",
			Name:      "acks_total",
			Help:      "Acknowledgements written after payment, by response type.",
		}, []string{"type"}),
	}
	for _, collector := range []prometheus.Collector{m.orders, m.duration, m.acks} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) outcome(outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) ack(responseType string) {
	if m == nil {
		return
	}
	m.acks.WithLabelValues(responseType).Inc()
}
