package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporter_Collect(t *testing.T) {
	c := NewCollector(DefaultLatencyWindow)
	c.RecordMessageSent()
	c.RecordMessageSent()
	c.RecordError()
	c.SetQueueSize(3)
	c.RecordLatency(250 * time.Millisecond)

	e := NewExporter(c, prometheus.Labels{"endpoint": "eu-1"})

	assert.Equal(t, 11, testutil.CollectAndCount(e))

	expected := `
# HELP gamelink_messages_sent_total Commands written to the transport.
# TYPE gamelink_messages_sent_total counter
gamelink_messages_sent_total{endpoint="eu-1"} 2
# HELP gamelink_queue_size Commands waiting in the outbound queue.
# TYPE gamelink_queue_size gauge
gamelink_queue_size{endpoint="eu-1"} 3
`
	err := testutil.CollectAndCompare(e, strings.NewReader(expected),
		"gamelink_messages_sent_total", "gamelink_queue_size")
	require.NoError(t, err)
}

func TestExporter_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewExporter(NewCollector(0), nil)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 10)
}
