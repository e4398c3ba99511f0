// Package metrics exposes Prometheus instruments for scans and the report API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesScanned counts scanned files by family and final status.
	FilesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "files_total",
		Help:      "Total scanned files by document family and status.",
	}, []string{"family", "status"})

	// Verdicts counts final verdicts.
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "verdicts_total",
		Help:      "Total verdicts assigned by value.",
	}, []string{"verdict"})

	// ThreatTags counts threat tags raised across all files.
	ThreatTags = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "threat_tags_total",
		Help:      "Total threat tags raised by tag.",
	}, []string{"tag"})

	// AnalyzerFailures counts analyzers that returned an error or panicked.
	AnalyzerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "analyzer_failures_total",
		Help:      "Total analyzer failures by analyzer name.",
	}, []string{"analyzer"})

	// Duplicates counts records flagged as duplicates.
	Duplicates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "duplicates_total",
		Help:      "Total records flagged as byte-identical duplicates.",
	})

	// SkippedEntries counts inputs skipped during discovery or archive expansion.
	SkippedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "skipped_total",
		Help:      "Total inputs skipped by reason.",
	}, []string{"reason"})

	// FileDuration tracks per-file analysis latency.
	FileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "file_duration_seconds",
		Help:      "Per-file analysis duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"family"})

	// ActiveScans tracks batches in progress.
	ActiveScans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "officerecon",
		Subsystem: "scan",
		Name:      "active_batches",
		Help:      "Number of batch scans currently running.",
	})

	// Notifications counts notifier outcomes.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "notify",
		Name:      "messages_total",
		Help:      "Total notifications by outcome (sent, failed, dropped).",
	}, []string{"outcome"})

	// HTTPRequests counts report API requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "officerecon",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total report API requests by route and HTTP status.",
	}, []string{"route", "status"})
)
