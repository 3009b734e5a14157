package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volley/internal/runner"
	"volley/internal/stats"
	"volley/internal/storage"
)

func TestParseHeaderFlags(t *testing.T) {
	h, err := parseHeaderFlags(`{"Accept":"text/plain","X-A":"1"}`, []string{"X-A: 2", "Authorization: Bearer a:b"})
	require.NoError(t, err)
	assert.Equal(t, runner.Headers{
		"Accept":        "text/plain",
		"X-A":           "2",
		"Authorization": "Bearer a:b",
	}, h)

	_, err = parseHeaderFlags("", []string{"no colon"})
	assert.ErrorIs(t, err, runner.ErrInvalidConfig)

	_, err = parseHeaderFlags(`["not","an","object"]`, nil)
	assert.ErrorIs(t, err, runner.ErrInvalidConfig)
}

// newRunFlags returns a fresh command carrying the run flags, parsed from args.
func newRunFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	c := &cobra.Command{Use: "run"}
	c.Flags().AddFlagSet(runCmd.Flags())
	require.NoError(t, c.Flags().Parse(args))
	t.Cleanup(func() {
		runURL, runMethod, runBody, runHeadersJSON, runFrom = "", "GET", "", "", ""
		runHeaders = []string{}
		runUsers, runRequests, runDelay = 10, 100, 0
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	})
	return c
}

func TestBuildRunConfigFromHistory(t *testing.T) {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "h.json"), 5)
	require.NoError(t, err)
	require.NoError(t, store.Save(runner.Summary{
		ID: "prev",
		Config: runner.Config{
			URL:             "https://example.com/a",
			Method:          "POST",
			Body:            `{"x":1}`,
			Headers:         runner.Headers{"X-Old": "1"},
			ConcurrentUsers: 4,
			TotalRequests:   40,
		},
		State:   runner.StateCompleted,
		EndTime: time.Now(),
	}))

	c := newRunFlags(t, "--from", "prev", "-n", "80", "-H", "X-New: 2")
	cfg, err := buildRunConfig(c, store)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/a", cfg.URL)
	assert.Equal(t, "POST", cfg.Method)
	assert.Equal(t, runner.Body(`{"x":1}`), cfg.Body)
	assert.Equal(t, 4, cfg.ConcurrentUsers)
	assert.Equal(t, 80, cfg.TotalRequests)
	assert.Equal(t, runner.Headers{"X-Old": "1", "X-New": "2"}, cfg.Headers)
}

func TestBuildRunConfigNeedsTarget(t *testing.T) {
	c := newRunFlags(t)
	_, err := buildRunConfig(c, nil)
	assert.Error(t, err)

	c = newRunFlags(t, "-u", "http://localhost:8080/ok", "-c", "3", "-X", "put", "-b", "hi")
	cfg, err := buildRunConfig(c, nil)
	require.NoError(t, err)
	assert.Equal(t, runner.Config{
		URL:             "http://localhost:8080/ok",
		Method:          "put",
		Body:            "hi",
		ConcurrentUsers: 3,
		TotalRequests:   100,
	}, cfg)
}

func TestHistoryTable(t *testing.T) {
	out := historyTable([]storage.HistoryItem{{
		ID:       "abc",
		State:    "stopped",
		Config:   runner.Config{Method: "GET", URL: "http://x", ConcurrentUsers: 2, TotalRequests: 10},
		Stats:    stats.Snapshot{Running: stats.Running{TotalRequests: 4}, SuccessRate: 50},
		Duration: 1.25,
	}})

	for _, want := range []string{"abc", "stopped", "GET http://x", "4/10", "50.0%", "1.25s"} {
		assert.Contains(t, out, want)
	}
}
