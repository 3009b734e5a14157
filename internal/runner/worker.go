package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"volley/internal/stats"
)

var errNoResponse = errors.New("no response")

// worker is one virtual user: it keeps issuing requests until the budget is
// exhausted or the run stops.
type worker struct {
	id     int
	run    *Run
	client HTTPClient
	logger *zap.Logger
}

func (w *worker) loop() {
	delay := w.run.cfg.Delay()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for w.run.Running() {
		if !w.run.budget.Reserve() {
			return
		}

		w.execute()

		if delay <= 0 || !w.run.Running() {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-timer.C:
		case <-w.run.stopCh:
			return
		}
	}
}

func (w *worker) execute() {
	r := w.run

	r.stats.MarkSent()
	r.publishUpdate(Update{WorkerID: w.id, Action: ActionRequestSent})

	w.logger.Debug("sending request",
		zap.String("run_id", r.id),
		zap.Int("worker_id", w.id),
		zap.String("method", r.req.Method),
		zap.String("url", r.req.URL),
	)

	sent := time.Now()
	ctx, cancel := context.WithTimeout(r.ctx, RequestTimeout)
	resp, err := w.client.Do(ctx, r.req)
	cancel()
	elapsed := time.Since(sent).Milliseconds()
	if resp == nil && err == nil {
		err = errNoResponse
	}

	u := Update{
		WorkerID:       w.id,
		Action:         ActionResponseReceived,
		ResponseTimeMs: elapsed,
	}
	sample := stats.Sample{ResponseTimeMs: elapsed}

	if resp != nil {
		out := Classify(resp.StatusCode, false)
		sample.StatusCode = out.StatusCode
		sample.Success = out.Success

		u.StatusCode = resp.StatusCode
		u.ResponsePreview = resp.Preview()
		u.ResponseHeaders = resp.Headers
	} else {
		out := Classify(0, true)
		sample.Success = out.Success
	}

	if err != nil {
		sample.Err = err.Error()
		u.Error = err.Error()

		w.logger.Warn("request failed",
			zap.String("run_id", r.id),
			zap.Int("worker_id", w.id),
			zap.Int("status", u.StatusCode),
			zap.Int64("response_ms", elapsed),
			zap.Error(err),
		)
	} else {
		w.logger.Debug("response received",
			zap.String("run_id", r.id),
			zap.Int("worker_id", w.id),
			zap.Int("status", resp.StatusCode),
			zap.Int64("response_ms", elapsed),
		)
	}

	r.stats.Record(sample)
	r.publishUpdate(u)
}
