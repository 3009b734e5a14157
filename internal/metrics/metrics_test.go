package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volley/internal/runner"
)

func update(action runner.Action, status int, ms int64) runner.Event {
	return runner.Event{
		Type:  runner.EventUpdate,
		RunID: "r",
		Update: &runner.Update{
			Action:         action,
			StatusCode:     status,
			ResponseTimeMs: ms,
		},
	}
}

func TestCollectorCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Publish(runner.Event{Type: runner.EventStarted, RunID: "r"})
	c.Publish(runner.Event{Type: runner.EventStarted, RunID: "s"})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeRuns))

	for i := 0; i < 3; i++ {
		c.Publish(update(runner.ActionRequestSent, 0, 0))
	}
	c.Publish(update(runner.ActionResponseReceived, 200, 12))
	c.Publish(update(runner.ActionResponseReceived, 404, 5))
	c.Publish(update(runner.ActionResponseReceived, 0, 30))

	assert.Equal(t, 3.0, testutil.ToFloat64(c.requestsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.responses.WithLabelValues("success", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.responses.WithLabelValues("failure", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.responses.WithLabelValues("error", "none")))

	c.Publish(runner.Event{Type: runner.EventCompleted, RunID: "r"})
	c.Publish(runner.Event{Type: runner.EventStopped, RunID: "s"})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("stopped")))

	count, err := testutil.GatherAndCount(reg, "volley_response_time_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP volley_requests_sent_total Requests issued by load test workers.
# TYPE volley_requests_sent_total counter
volley_requests_sent_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "volley_requests_sent_total"))
}

func TestCollectorIgnoresEmptyUpdate(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.Publish(runner.Event{Type: runner.EventUpdate})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.requestsSent))
}
