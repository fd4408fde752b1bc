// Package loki pushes forwarded log records to a Grafana Loki server.
//
// It implements logging.RemoteSink using the JSON push API
// (POST /loki/api/v1/push). The configured URL may be the server root, in
// which case the push path is appended, or a full push URL behind a proxy
// that rewrites paths. Each record becomes one line in a stream whose
// labels are the configured static labels, the record level and any
// label attributes present on the record (address and feed by default).
//
// Delivery is driven by logging.Forwarder, so a slow or unreachable Loki
// server never blocks the polling cycle.
package loki
