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

package badger

import "github.com/prometheus/client_golang/prometheus"

const badgerMetricNamePrefix = "database_blob_"

type blobMetrics struct {
	gcRuns     prometheus.Counter
	gcFailures prometheus.Counter
}

func (d *BlobStoreBadger) registerBlobMetrics() {
	d.metrics.gcRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: badgerMetricNamePrefix + "gc_runs_total",
			Help: "Total number of successful value log GC passes",
		},
	)
	d.metrics.gcFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: badgerMetricNamePrefix + "gc_failures_total",
			Help: "Total number of failed value log GC passes",
		},
	)
	lsmSize := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: badgerMetricNamePrefix + "lsm_size_bytes",
			Help: "Size of the badger LSM tree",
		},
		func() float64 {
			lsm, _ := d.db.Size()
			return float64(lsm)
		},
	)
	vlogSize := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: badgerMetricNamePrefix + "vlog_size_bytes",
			Help: "Size of the badger value log",
		},
		func() float64 {
			_, vlog := d.db.Size()
			return float64(vlog)
		},
	)
	d.promRegistry.MustRegister(
		d.metrics.gcRuns,
		d.metrics.gcFailures,
		lsmSize,
		vlogSize,
	)
}

func (m *blobMetrics) incGcRuns() {
	if m.gcRuns != nil {
		m.gcRuns.Inc()
	}
}

func (m *blobMetrics) incGcFailures() {
	if m.gcFailures != nil {
		m.gcFailures.Inc()
	}
}
