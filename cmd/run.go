package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"volley/internal/cli"
	"volley/internal/runner"
	"volley/internal/storage"
	"volley/internal/tui/live"
)

var (
	runURL         string
	runMethod      string
	runBody        string
	runHeadersJSON string
	runHeaders     []string
	runUsers       int
	runRequests    int
	runDelay       int
	runFrom        string
	runTUI         bool
	runInsecure    bool
	runNoHistory   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one load test from flags",
	Example: `  volley run -u http://localhost:8080/ok -c 10 -n 500
  volley run -u https://api.example.com/items -X POST -b '{"name":"x"}' -H "Authorization: Bearer t"
  volley run --from 3f1c... --tui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer env.close()

		var history storage.HistoryStore
		if !runNoHistory || runFrom != "" {
			history, err = env.openHistory()
			if err != nil {
				return err
			}
			defer history.Close()
		}

		cfg, err := buildRunConfig(cmd, history)
		if err != nil {
			return err
		}

		var sink runner.HistorySink
		if !runNoHistory {
			sink = history
		}
		controller := runner.NewController(
			runner.NewNetClient(cfg.ConcurrentUsers, runInsecure),
			nil, sink, nil, env.logger,
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runTUI {
			return runWithTUI(ctx, controller, cfg, cmd.OutOrStdout())
		}
		_, err = cli.Start(ctx, controller, cfg, cmd.OutOrStdout())
		return err
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runURL, "url", "u", "", "Target URL")
	f.StringVarP(&runMethod, "method", "X", "GET", "HTTP Method")
	f.StringVarP(&runBody, "body", "b", "", "Request Body, sent verbatim")
	f.StringVar(&runHeadersJSON, "headers", "", `Headers as a JSON object (e.g. '{"Accept":"text/plain"}')`)
	f.StringSliceVarP(&runHeaders, "header", "H", []string{}, "HTTP Header (e.g. \"Key: Value\")")
	f.IntVarP(&runUsers, "users", "c", 10, "Concurrent virtual users")
	f.IntVarP(&runRequests, "requests", "n", 100, "Total requests across all users")
	f.IntVarP(&runDelay, "delay", "d", 0, "Delay between requests of one user (ms)")
	f.StringVar(&runFrom, "from", "", "Start from the config of a stored run; other flags override it")
	f.BoolVar(&runTUI, "tui", false, "Show the live dashboard")
	f.BoolVarP(&runInsecure, "insecure", "k", false, "Skip TLS certificate verification")
	f.BoolVar(&runNoHistory, "no-history", false, "Do not save the result to history")
}

func buildRunConfig(cmd *cobra.Command, history storage.HistoryStore) (runner.Config, error) {
	cfg := runner.Config{
		URL:                  runURL,
		Method:               runMethod,
		Body:                 runner.Body(runBody),
		ConcurrentUsers:      runUsers,
		TotalRequests:        runRequests,
		DelayBetweenRequests: runDelay,
	}

	if runFrom != "" {
		item, err := history.Get(runFrom)
		if err != nil {
			return cfg, fmt.Errorf("load run %s: %w", runFrom, err)
		}
		cfg = overrideConfig(item.Config, cmd)
	} else if cfg.URL == "" {
		return cfg, errors.New("--url or --from is required")
	}

	headers, err := parseHeaderFlags(runHeadersJSON, runHeaders)
	if err != nil {
		return cfg, err
	}
	if len(headers) > 0 {
		merged := runner.Headers{}
		maps.Copy(merged, cfg.Headers)
		maps.Copy(merged, headers)
		cfg.Headers = merged
	}
	return cfg, nil
}

// overrideConfig applies only the flags the user actually set on top of a
// stored config.
func overrideConfig(base runner.Config, cmd *cobra.Command) runner.Config {
	f := cmd.Flags()
	if f.Changed("url") {
		base.URL = runURL
	}
	if f.Changed("method") {
		base.Method = runMethod
	}
	if f.Changed("body") {
		base.Body = runner.Body(runBody)
	}
	if f.Changed("users") {
		base.ConcurrentUsers = runUsers
	}
	if f.Changed("requests") {
		base.TotalRequests = runRequests
	}
	if f.Changed("delay") {
		base.DelayBetweenRequests = runDelay
	}
	return base
}

// parseHeaderFlags merges --headers JSON with repeated -H "Key: Value".
func parseHeaderFlags(jsonText string, lines []string) (runner.Headers, error) {
	headers, err := runner.ParseHeaders(jsonText)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = runner.Headers{}
	}

	for _, h := range lines {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: header %q is not \"Key: Value\"", runner.ErrInvalidConfig, h)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func runWithTUI(ctx context.Context, controller *runner.Controller, cfg runner.Config, out io.Writer) error {
	events := make(runner.ChannelPublisher, 256)
	run, err := controller.StartRun(cfg, events)
	if err != nil {
		return err
	}

	// Stop publishes into events; never call it from the goroutine reading them.
	stopRun := func() { go controller.Stop(run.ID()) }

	go func() {
		<-run.Done()
		close(events)
	}()
	go func() {
		select {
		case <-ctx.Done():
			stopRun()
		case <-run.Done():
		}
	}()

	p := tea.NewProgram(live.NewModel(run.Config(), events, stopRun), tea.WithAltScreen())
	_, tuiErr := p.Run()

	// The dashboard may have quit before the run ended.
	go func() {
		for range events {
		}
	}()
	stopRun()

	cli.PrintSummary(out, run.Summary())
	return tuiErr
}
