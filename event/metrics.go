// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import "github.com/prometheus/client_golang/prometheus"

const eventMetricNamePrefix = "tally_event_"

type eventMetrics struct {
	subscribers    *prometheus.GaugeVec
	deliveryErrors *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
}

func (e *EventBus) initMetrics(promRegistry prometheus.Registerer) {
	e.metrics = &eventMetrics{
		subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: eventMetricNamePrefix + "subscribers",
				Help: "Number of event subscribers",
			},
			[]string{"type", "kind"},
		),
		deliveryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: eventMetricNamePrefix + "delivery_errors_total",
				Help: "Total number of failed or dropped event deliveries",
			},
			[]string{"type", "kind"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: eventMetricNamePrefix + "published_total",
				Help: "Total number of published events",
			},
			[]string{"type"},
		),
	}
	promRegistry.MustRegister(
		e.metrics.subscribers,
		e.metrics.deliveryErrors,
		e.metrics.eventsTotal,
	)
}

// The helpers below are no-ops on a nil receiver so callers need no guards

func (m *eventMetrics) subscriberAdded(eventType EventType, kind string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(string(eventType), kind).Inc()
}

func (m *eventMetrics) subscriberRemoved(eventType EventType, kind string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(string(eventType), kind).Dec()
}

func (m *eventMetrics) deliveryError(eventType EventType, kind string) {
	if m == nil {
		return
	}
	m.deliveryErrors.WithLabelValues(string(eventType), kind).Inc()
}

func (m *eventMetrics) published(eventType EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(eventType)).Inc()
}

func (m *eventMetrics) reset() {
	if m == nil {
		return
	}
	m.subscribers.Reset()
}
