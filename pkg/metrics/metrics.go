// Package metrics provides the Prometheus registry reference for the
// document service client. Metrics are defined next to the behavior they
// measure (pkg/client, pkg/sessions) and registered via promauto; this
// package documents the full set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the client.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - docdb_requests_total{resource, status} (Counter): Gateway requests by
//     resource type (dbs, colls, docs, pkranges) and HTTP status
//   - docdb_request_duration_seconds{resource} (Histogram): Wall-clock
//     request duration including retries
//   - docdb_errors_total{class} (Counter): Errors by class (transient_server,
//     transient_auth, network, permanent)
//   - docdb_request_charge_total{resource} (Counter): Cumulative request
//     units billed by the service
//
// Retry Metrics (pkg/client):
//   - docdb_retries_total{error_class} (Counter): Retry attempts
//   - docdb_retry_backoff_seconds{error_class} (Histogram): Scheduled backoff
//     delays
//   - docdb_retry_exhausted_total{error_class} (Counter): Calls that consumed
//     the whole backoff schedule
//
// Query Metrics (pkg/client):
//   - docdb_query_pages_total (Counter): Result pages fetched
//   - docdb_query_documents_total (Counter): Documents returned across pages
//
// Session Metrics (pkg/sessions):
//   - docdb_session_replays_total (Counter): Session tokens replayed on reads
//   - docdb_session_misses_total (Counter): Reads with no recorded token
//   - docdb_session_errors_total{operation} (Counter): Session store failures
//
// Example Prometheus Queries:
//
//   # Request units burned per minute
//   sum(rate(docdb_request_charge_total[1m]))
//
//   # Throttling pressure
//   rate(docdb_retries_total{error_class="transient_server"}[5m])
//
//   # Retry exhaustion (should stay at zero)
//   increase(docdb_retry_exhausted_total[1h])
