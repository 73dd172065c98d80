// Copyright 2021 Edgecast Inc

package icmpping

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricsNamespace = "icmpping"
)

// Metrics exports the session counters to prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transmitted prometheus.Counter
	Received    prometheus.Counter
	Timeouts    prometheus.Counter
	Dropped     *prometheus.CounterVec
	RTT         prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "transmitted_total",
			Help:      "ICMP echo requests sent",
		}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "received_total",
			Help:      "ICMP echo replies matched to a request",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "timeouts_total",
			Help:      "Echo requests with no matching reply before the timeout",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "dropped_total",
			Help:      "Received datagrams that were not a reply to the outstanding request",
		}, []string{"verdict"}),
		RTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "rtt_seconds",
			Help:      "Round trip time of matched echo replies",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
	}

	for _, c := range []prometheus.Collector{m.Transmitted, m.Received, m.Timeouts, m.Dropped, m.RTT} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) transmitted() {
	if m == nil {
		return
	}
	m.Transmitted.Inc()
}

func (m *Metrics) received(rtt time.Duration) {
	if m == nil {
		return
	}
	m.Received.Inc()
	m.RTT.Observe(rtt.Seconds())
}

func (m *Metrics) timeout() {
	if m == nil {
		return
	}
	m.Timeouts.Inc()
}

func (m *Metrics) dropped(v Verdict) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(v.String()).Inc()
}
