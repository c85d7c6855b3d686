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

package governance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	proposalCount     prometheus.Gauge
	totalBasePower    prometheus.Gauge
	votesTotal        *prometheus.CounterVec
	voteWeightTotal   *prometheus.CounterVec
	finalizedTotal    *prometheus.CounterVec
}

func (m *engineMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.operationsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_governance_operations_total",
			Help: "total governance operations by result",
		},
		[]string{"operation", "result"},
	)
	m.operationDuration = promautoFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tally_governance_operation_duration_seconds",
			Help:    "time spent executing governance operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"operation"},
	)
	m.proposalCount = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "tally_governance_proposal_count",
		Help: "number of proposals ever created",
	})
	m.totalBasePower = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "tally_governance_total_base_power",
		Help: "sum of base power over registered users",
	})
	m.votesTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_governance_votes_total",
			Help: "total accepted votes by choice",
		},
		[]string{"choice"},
	)
	m.voteWeightTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_governance_vote_weight_total",
			Help: "total tally weight applied by choice",
		},
		[]string{"choice"},
	)
	m.finalizedTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_governance_proposals_finalized_total",
			Help: "total finalized proposals by outcome",
		},
		[]string{"status"},
	)
}

func (m *engineMetrics) observeConfig(cfg *Config) {
	if m.proposalCount == nil || cfg == nil {
		return
	}
	m.proposalCount.Set(float64(cfg.ProposalCount))
	m.totalBasePower.Set(float64(cfg.TotalBasePower))
}

func (m *engineMetrics) observeEvent(payload any) {
	if m.votesTotal == nil {
		return
	}
	switch evt := payload.(type) {
	case *VoteEvent:
		m.votesTotal.WithLabelValues(evt.Choice.String()).Inc()
		m.voteWeightTotal.WithLabelValues(evt.Choice.String()).
			Add(float64(evt.Weight))
	case *ProposalFinalizedEvent:
		m.finalizedTotal.WithLabelValues(evt.Status.String()).Inc()
	}
}
