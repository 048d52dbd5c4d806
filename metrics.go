// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package rvm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// libMetrics mirrors the teacher's metrics.go shape (promauto.With(reg)
// counters/gauges built once at construction) but counts RVM's own
// operations instead of WAL appends/rotations.
type libMetrics struct {
	maps             prometheus.Counter
	mapErrors        prometheus.Counter
	unmaps           prometheus.Counter
	destroys         prometheus.Counter
	transactionsBegun     prometheus.Counter
	transactionsCommitted prometheus.Counter
	transactionsAborted   prometheus.Counter
	stagingConflicts prometheus.Counter
	redoBytesWritten prometheus.Counter
	truncations      prometheus.Counter
	truncationErrors prometheus.Counter
	stagedSegments   prometheus.Gauge
}

func newLibMetrics(reg prometheus.Registerer) *libMetrics {
	return &libMetrics{
		maps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_maps_total",
			Help: "rvm_maps_total counts successful calls to Map.",
		}),
		mapErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_map_errors_total",
			Help: "rvm_map_errors_total counts calls to Map that failed.",
		}),
		unmaps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_unmaps_total",
			Help: "rvm_unmaps_total counts successful calls to Unmap.",
		}),
		destroys: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_destroys_total",
			Help: "rvm_destroys_total counts calls to Destroy on an unmapped segment that completed without error.",
		}),
		transactionsBegun: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_transactions_begun_total",
			Help: "rvm_transactions_begun_total counts successful calls to BeginTrans.",
		}),
		transactionsCommitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_transactions_committed_total",
			Help: "rvm_transactions_committed_total counts calls to CommitTrans.",
		}),
		transactionsAborted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_transactions_aborted_total",
			Help: "rvm_transactions_aborted_total counts calls to AbortTrans.",
		}),
		stagingConflicts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_staging_conflicts_total",
			Help: "rvm_staging_conflicts_total counts BeginTrans calls rejected because a segment was already staged.",
		}),
		redoBytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_redo_bytes_written_total",
			Help: "rvm_redo_bytes_written_total counts payload bytes written to redo logs at commit.",
		}),
		truncations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_truncations_total",
			Help: "rvm_truncations_total counts calls to TruncateLog.",
		}),
		truncationErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rvm_truncation_errors_total",
			Help: "rvm_truncation_errors_total counts calls to TruncateLog that returned an error; per-segment failures are only logged.",
		}),
		stagedSegments: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rvm_staged_segments",
			Help: "rvm_staged_segments is the number of segments currently owned by a live transaction.",
		}),
	}
}
