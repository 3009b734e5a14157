// Package cli runs a load test headlessly, printing a progress line and a
// final report.
package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"volley/internal/runner"
	"volley/internal/stats"
)

const progressInterval = 200 * time.Millisecond

// Start runs cfg on c to completion, or until ctx is cancelled, which stops
// the run. Progress and the report go to out.
func Start(ctx context.Context, c *runner.Controller, cfg runner.Config, out io.Writer) (runner.Summary, error) {
	events := make(runner.ChannelPublisher, 256)
	run, err := c.StartRun(cfg, events)
	if err != nil {
		return runner.Summary{}, err
	}

	printHeader(out, run.Config(), run.ID())

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var last stats.Snapshot
	for {
		select {
		case ev := <-events:
			if ev.Type == runner.EventUpdate && ev.Update != nil {
				last = ev.Update.Stats
			}
		case <-ticker.C:
			printProgress(out, last, run.Config().TotalRequests)
		case <-ctx.Done():
			// Stop publishes into events, which only this loop drains.
			go c.Stop(run.ID())
			ctx = context.Background()
		case <-run.Done():
			sum := run.Summary()
			printProgress(out, sum.Stats, run.Config().TotalRequests)
			PrintSummary(out, sum)
			return sum, nil
		}
	}
}

func printHeader(out io.Writer, cfg runner.Config, id string) {
	fmt.Fprintf(out, "\n🚀 STARTING VOLLEY LOAD TEST %s\n", id)
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Target URL : %s\n", cfg.URL)
	fmt.Fprintf(out, "Method     : %s\n", cfg.Method)
	fmt.Fprintf(out, "Users      : %d\n", cfg.ConcurrentUsers)
	fmt.Fprintf(out, "Requests   : %d\n", cfg.TotalRequests)
	fmt.Fprintf(out, "Delay      : %dms\n", cfg.DelayBetweenRequests)
	for _, k := range cfg.Headers.Keys() {
		fmt.Fprintf(out, "Header     : %s: %s\n", k, cfg.Headers[k])
	}
	fmt.Fprintf(out, "======================================================================\n\n")
}

func printProgress(out io.Writer, s stats.Snapshot, total int) {
	pct := 0.0
	if total > 0 {
		pct = min(float64(s.ReceivedResponses)/float64(total), 1)
	}

	fmt.Fprintf(out, "\r%s %3.0f%% | %d/%d | RPS: %.1f | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		s.ReceivedResponses, total,
		s.RequestsPerSecond,
		s.SuccessfulRequests,
		s.FailedRequests,
	)
}

func progressBar(pct float64, width int) string {
	filled := min(max(int(pct*float64(width)), 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// PrintSummary writes the final report of a run.
func PrintSummary(out io.Writer, sum runner.Summary) {
	s := sum.Stats

	fmt.Fprintf(out, "\n\n📊 LOAD TEST RESULTS (%s)\n", sum.State)
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Total Duration : %.2fs\n", sum.DurationSeconds)
	fmt.Fprintf(out, "Requests Sent  : %d\n", s.SentRequests)
	fmt.Fprintf(out, "Responses      : %d\n", s.ReceivedResponses)
	fmt.Fprintf(out, "Success        : %d (%.2f%%)\n", s.SuccessfulRequests, s.SuccessRate)
	fmt.Fprintf(out, "Failures       : %d\n", s.FailedRequests)
	fmt.Fprintf(out, "Actual RPS     : %.2f\n", s.RequestsPerSecond)
	fmt.Fprintf(out, "\n⏱️  RESPONSE TIMES (ms)\n")
	fmt.Fprintf(out, "   Avg : %.2f\n", s.AvgResponseTime)
	fmt.Fprintf(out, "   Min : %d\n", s.MinResponseTime)
	fmt.Fprintf(out, "   P50 : %d\n", s.P50)
	fmt.Fprintf(out, "   P90 : %.2f\n", s.TP90)
	fmt.Fprintf(out, "   P95 : %.2f\n", s.TP95)
	fmt.Fprintf(out, "   P99 : %d\n", s.P99)
	fmt.Fprintf(out, "   Max : %d\n", s.MaxResponseTime)

	if len(s.StatusCodes) > 0 {
		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		fmt.Fprintf(out, "\n🔢 STATUS CODES\n")
		for _, code := range codes {
			fmt.Fprintf(out, "   %d : %d\n", code, s.StatusCodes[code])
		}
	}

	if errCounts := countErrors(s.Errors); len(errCounts) > 0 {
		fmt.Fprintf(out, "\n❌ FAILURE SUMMARY\n")
		for _, e := range errCounts {
			fmt.Fprintf(out, "   %d x %s\n", e.count, e.msg)
		}
	}
	fmt.Fprintf(out, "======================================================================\n")
}

type errorCount struct {
	msg   string
	count int
}

// countErrors groups identical messages, most frequent first.
func countErrors(errs []string) []errorCount {
	counts := make(map[string]int)
	for _, e := range errs {
		counts[e]++
	}

	res := make([]errorCount, 0, len(counts))
	for msg, n := range counts {
		res = append(res, errorCount{msg: msg, count: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].count != res[j].count {
			return res[i].count > res[j].count
		}
		return res[i].msg < res[j].msg
	})
	return res
}
