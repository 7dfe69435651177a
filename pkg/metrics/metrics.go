// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustd.
//
// go-trustd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for trustd. It
// exposes per-command counters and latency histograms, inquiry
// counters, and session gauges for monitoring daemon health.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all trustd metrics
	Namespace = "trustd"

	// Label names
	LabelCommand = "command"
	LabelStatus  = "status"
	LabelKeyword = "keyword"
	LabelSource  = "source"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// CommandsTotal tracks the number of protocol commands handled, by
	// command name and outcome.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Total number of protocol commands handled, by command and status",
		},
		[]string{LabelCommand, LabelStatus},
	)

	// CommandDuration tracks command handling latency in seconds.
	// Network-bound commands (keyserver, CRL fetches) dominate the
	// upper buckets.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of protocol command handling in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{LabelCommand},
	)

	// InquiriesTotal tracks the number of inquiries sent to clients, by
	// inquiry keyword.
	InquiriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inquiries_total",
			Help:      "Total number of inquiries sent to clients, by keyword",
		},
		[]string{LabelKeyword},
	)

	// ActiveSessions tracks the number of connected client sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of connected client sessions",
		},
	)

	// SessionsTotal tracks the total number of client sessions served.
	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_total",
			Help:      "Total number of client sessions served",
		},
	)

	// CachedCRLs tracks the number of CRLs held in the cache.
	CachedCRLs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cached_crls",
			Help:      "Number of CRLs held in the cache",
		},
	)

	// CachedCerts tracks the number of certificates held in the cache.
	CachedCerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cached_certs",
			Help:      "Number of certificates held in the cache",
		},
	)

	// CRLFetchesTotal tracks CRL retrievals, by source (file, url,
	// distribution_point) and outcome.
	CRLFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crl_fetches_total",
			Help:      "Total number of CRL retrievals, by source and status",
		},
		[]string{LabelSource, LabelStatus},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCommand records one handled protocol command with its duration
// and outcome.
//
// Parameters:
//   - command: the protocol command name (e.g. "ISVALID")
//   - status: the outcome (use Status* constants)
//   - duration: the handling duration in seconds
func RecordCommand(command, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CommandsTotal.WithLabelValues(command, status).Inc()
	CommandDuration.WithLabelValues(command).Observe(duration)
}

// RecordInquiry records one inquiry sent to a client.
func RecordInquiry(keyword string) {
	if !enabled.Load() {
		return
	}
	InquiriesTotal.WithLabelValues(keyword).Inc()
}

// SessionStarted records a new client session.
func SessionStarted() {
	if !enabled.Load() {
		return
	}
	SessionsTotal.Inc()
	ActiveSessions.Inc()
}

// SessionEnded records a closed client session.
func SessionEnded() {
	if !enabled.Load() {
		return
	}
	ActiveSessions.Dec()
}

// RecordCRLFetch records one CRL retrieval attempt.
func RecordCRLFetch(source, status string) {
	if !enabled.Load() {
		return
	}
	CRLFetchesTotal.WithLabelValues(source, status).Inc()
}

// SetCachedCRLs sets the CRL cache size gauge.
func SetCachedCRLs(count float64) {
	if !enabled.Load() {
		return
	}
	CachedCRLs.Set(count)
}

// SetCachedCerts sets the certificate cache size gauge.
func SetCachedCerts(count float64) {
	if !enabled.Load() {
		return
	}
	CachedCerts.Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
