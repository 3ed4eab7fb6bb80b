// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MergeOperationsTotal tracks merge and unmerge attempts by outcome
	MergeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "operations_total",
			Help:      "Total number of merge and unmerge operations by status",
		},
		[]string{"tenant_id", "operation", "status"},
	)

	// MergeOperationDuration tracks merge and unmerge duration in seconds
	MergeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "operation_duration_seconds",
			Help:      "Duration of merge and unmerge operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// DuplicateSearchesTotal tracks duplicate searches
	DuplicateSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "searches_total",
			Help:      "Total number of duplicate searches",
		},
		[]string{"tenant_id"},
	)

	// DuplicateCandidatesFound tracks how many candidates a search returns
	DuplicateCandidatesFound = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "candidates_found",
			Help:      "Number of duplicate candidates returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// RecordsScanned tracks how many records a search compared
	RecordsScanned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "records_scanned",
			Help:      "Number of records scored per duplicate search",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// QualityScores tracks the distribution of computed quality scores
	QualityScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "quality",
			Name:      "score",
			Help:      "Distribution of computed record quality scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// EventsPublishedTotal tracks lifecycle events by outcome
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of record lifecycle events published",
		},
		[]string{"event_type", "status"},
	)
)

// Status labels
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusFor maps an error to a status label
func StatusFor(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
