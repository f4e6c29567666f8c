// Package metrics defines the Prometheus collectors for filed. Collectors
// are registered with the default registry at init time and exposed by the
// admin HTTP endpoint (pkg/api).
package metrics

import (
	"github.com/marmos91/filed/pkg/errcode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeUserError = "user_error"
	OutcomeError     = "error"
)

var (
	// RequestsTotal counts dispatched requests by procedure and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filed",
		Name:      "requests_total",
		Help:      "Requests dispatched, by procedure and outcome.",
	}, []string{"procedure", "outcome"})

	// BytesUploaded counts file bytes committed through the upload pipeline.
	BytesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Name:      "bytes_uploaded_total",
		Help:      "File bytes committed by UploadFile.",
	})

	// BytesDownloaded counts file bytes served by DownloadFile.
	BytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Name:      "bytes_downloaded_total",
		Help:      "File bytes served by DownloadFile.",
	})

	// ActiveConnections tracks currently open client connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "filed",
		Name:      "active_connections",
		Help:      "Currently open client connections.",
	})

	// ConnectionsTotal counts accepted client connections.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Name:      "connections_total",
		Help:      "Accepted client connections.",
	})

	// TransactionsStarted counts upload transactions opened by the
	// persistence engine.
	TransactionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Subsystem: "persist",
		Name:      "transactions_started_total",
		Help:      "Upload transactions opened (START records appended).",
	})

	// TransactionsCommitted counts upload transactions committed by rename.
	TransactionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Subsystem: "persist",
		Name:      "transactions_committed_total",
		Help:      "Upload transactions committed (WRITE records appended).",
	})

	// RecoveredCommits counts renames finished during recovery.
	RecoveredCommits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Subsystem: "persist",
		Name:      "recovered_commits_total",
		Help:      "Renames completed while replaying the store at startup.",
	})

	// RecoveredOrphans counts staging files discarded during recovery.
	RecoveredOrphans = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Subsystem: "persist",
		Name:      "recovered_orphans_total",
		Help:      "Staging files discarded while replaying the store at startup.",
	})

	// StoreBadEntries counts malformed store records seen during recovery.
	StoreBadEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filed",
		Subsystem: "persist",
		Name:      "store_bad_entries_total",
		Help:      "Malformed store records skipped during recovery.",
	})
)

// ObserveRequest records one dispatched request with its wire error code.
func ObserveRequest(procedure string, code int32) {
	outcome := OutcomeOK
	switch {
	case code == 0:
	case errcode.IsUserCode(code):
		outcome = OutcomeUserError
	default:
		outcome = OutcomeError
	}
	RequestsTotal.WithLabelValues(procedure, outcome).Inc()
}
