package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volley/internal/runner"
	"volley/internal/stats"
)

func TestStartRunsToCompletion(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	c := runner.NewController(runner.NewNetClient(2, false), nil, nil, nil, nil)

	var out bytes.Buffer
	sum, err := Start(context.Background(), c, runner.Config{
		URL:             target.URL,
		ConcurrentUsers: 2,
		TotalRequests:   6,
		Headers:         runner.Headers{"X-Run": "cli"},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, runner.StateCompleted, sum.State)
	assert.EqualValues(t, 6, sum.Stats.SuccessfulRequests)

	report := out.String()
	assert.Contains(t, report, "Target URL : "+target.URL)
	assert.Contains(t, report, "Header     : X-Run: cli")
	assert.Contains(t, report, "LOAD TEST RESULTS (completed)")
	assert.Contains(t, report, "200 : 6")
	assert.Contains(t, report, "6/6")
}

func TestStartStopsOnCancel(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()

	c := runner.NewController(runner.NewNetClient(1, false), nil, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	sum, err := Start(ctx, c, runner.Config{
		URL:                  target.URL,
		ConcurrentUsers:      1,
		TotalRequests:        100,
		DelayBetweenRequests: 5000,
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, runner.StateStopped, sum.State)
	assert.Less(t, sum.Stats.TotalRequests, int64(100))
	assert.Contains(t, out.String(), "LOAD TEST RESULTS (stopped)")
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	c := runner.NewController(runner.NewNetClient(1, false), nil, nil, nil, nil)

	_, err := Start(context.Background(), c, runner.Config{URL: "ftp://x"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, runner.ErrInvalidConfig)
}

func TestPrintSummaryGroupsErrors(t *testing.T) {
	var out bytes.Buffer
	PrintSummary(&out, runner.Summary{
		State: runner.StateCompleted,
		Stats: stats.Snapshot{Running: stats.Running{
			Errors: []string{"timeout", "refused", "timeout"},
		}},
	})

	assert.Contains(t, out.String(), "2 x timeout")
	assert.Contains(t, out.String(), "1 x refused")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[----]", progressBar(0, 4))
	assert.Equal(t, "[██--]", progressBar(0.5, 4))
	assert.Equal(t, "[████]", progressBar(2, 4))
}
