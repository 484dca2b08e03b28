// Copyright 2024 Nokia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netconf_server"

const (
	ProtocolNETCONF  = "netconf"
	ProtocolRESTCONF = "restconf"
)

// Metrics holds the server wide counters. All methods are safe on a nil
// receiver so components can run without a registry.
type Metrics struct {
	operations    *prometheus.CounterVec
	failures      *prometheus.CounterVec
	sessions      prometheus.Gauge
	locks         prometheus.Gauge
	applyDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Number of operations handled, per protocol and operation.",
		}, []string{"protocol", "operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Number of failed operations, per protocol, operation and error tag.",
		}, []string{"protocol", "operation", "error_tag"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of open sessions.",
		}),
		locks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locks_held",
			Help:      "Number of datastores currently locked.",
		}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time spent pushing a configuration to the apply callback.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.failures, m.sessions, m.locks, m.applyDuration)
	}
	return m
}

func (m *Metrics) Operation(protocol, operation string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(protocol, operation).Inc()
}

func (m *Metrics) Failure(protocol, operation, tag string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(protocol, operation, tag).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) LocksHeld(n int) {
	if m == nil {
		return
	}
	m.locks.Set(float64(n))
}

func (m *Metrics) ObserveApply(d time.Duration) {
	if m == nil {
		return
	}
	m.applyDuration.Observe(d.Seconds())
}

// OperationCounter exposes the counter vector, for tests.
func (m *Metrics) OperationCounter() *prometheus.CounterVec { return m.operations }

// FailureCounter exposes the failure counter vector, for tests.
func (m *Metrics) FailureCounter() *prometheus.CounterVec { return m.failures }
