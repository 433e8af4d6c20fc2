// Package metrics records connection statistics for a single client session.
//
// Collector accumulates counters and a bounded window of round-trip latency
// samples. Snapshot derives a read-only view on demand; the average latency
// is recomputed from the window on every read.
//
// Exporter adapts a Collector to prometheus.Collector so the same numbers can
// be scraped:
//   - gamelink_connected, gamelink_uptime_seconds
//   - gamelink_messages_sent_total, gamelink_messages_received_total
//   - gamelink_reconnect_attempts_total, gamelink_reconnect_successes_total
//   - gamelink_errors_total, gamelink_queue_size
//   - gamelink_latency_seconds (last and average)
package metrics
