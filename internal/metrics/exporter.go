package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gamelink"

// Exporter exposes a Collector's snapshot as Prometheus metrics at scrape time.
type Exporter struct {
	source *Collector

	connected          *prometheus.Desc
	uptime             *prometheus.Desc
	messagesSent       *prometheus.Desc
	messagesReceived   *prometheus.Desc
	reconnectAttempts  *prometheus.Desc
	reconnectSuccesses *prometheus.Desc
	reconnectDelay     *prometheus.Desc
	errors             *prometheus.Desc
	queueSize          *prometheus.Desc
	latency            *prometheus.Desc
}

// NewExporter creates an exporter. constLabels are attached to every metric,
// typically the endpoint name.
func NewExporter(source *Collector, constLabels prometheus.Labels) *Exporter {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, constLabels)
	}
	return &Exporter{
		source:             source,
		connected:          desc("connected", "Whether the client transport is currently open (1) or not (0)."),
		uptime:             desc("uptime_seconds", "Seconds since the current connection was opened."),
		messagesSent:       desc("messages_sent_total", "Commands written to the transport."),
		messagesReceived:   desc("messages_received_total", "Messages decoded from the transport."),
		reconnectAttempts:  desc("reconnect_attempts_total", "Scheduled reconnection attempts."),
		reconnectSuccesses: desc("reconnect_successes_total", "Reconnections that reached the ready state."),
		reconnectDelay:     desc("reconnect_delay_seconds", "Delay before the pending reconnection attempt."),
		errors:             desc("errors_total", "Errors reported by the connection."),
		queueSize:          desc("queue_size", "Commands waiting in the outbound queue."),
		latency:            desc("latency_seconds", "Heartbeat round-trip latency.", "stat"),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.connected
	ch <- e.uptime
	ch <- e.messagesSent
	ch <- e.messagesReceived
	ch <- e.reconnectAttempts
	ch <- e.reconnectSuccesses
	ch <- e.reconnectDelay
	ch <- e.errors
	ch <- e.queueSize
	ch <- e.latency
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.source.Snapshot()

	connected := 0.0
	if s.Connected() {
		connected = 1
	}

	ch <- prometheus.MustNewConstMetric(e.connected, prometheus.GaugeValue, connected)
	ch <- prometheus.MustNewConstMetric(e.uptime, prometheus.GaugeValue, s.Uptime.Seconds())
	ch <- prometheus.MustNewConstMetric(e.messagesSent, prometheus.CounterValue, float64(s.MessagesSent))
	ch <- prometheus.MustNewConstMetric(e.messagesReceived, prometheus.CounterValue, float64(s.MessagesReceived))
	ch <- prometheus.MustNewConstMetric(e.reconnectAttempts, prometheus.CounterValue, float64(s.ReconnectAttempts))
	ch <- prometheus.MustNewConstMetric(e.reconnectSuccesses, prometheus.CounterValue, float64(s.ReconnectSuccesses))
	ch <- prometheus.MustNewConstMetric(e.reconnectDelay, prometheus.GaugeValue, s.CurrentReconnectDelay.Seconds())
	ch <- prometheus.MustNewConstMetric(e.errors, prometheus.CounterValue, float64(s.Errors))
	ch <- prometheus.MustNewConstMetric(e.queueSize, prometheus.GaugeValue, float64(s.QueueSize))
	ch <- prometheus.MustNewConstMetric(e.latency, prometheus.GaugeValue, s.LastLatency.Seconds(), "last")
	ch <- prometheus.MustNewConstMetric(e.latency, prometheus.GaugeValue, s.AverageLatency.Seconds(), "average")
}
