// Package dummy is a throwaway target server for trying volley out locally.
package dummy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type ServerConfig struct {
	Port int
	// Sleep is replaceable so tests do not wait.
	Sleep func(time.Duration)
}

// Endpoints lists the paths Handler serves.
var Endpoints = []string{"/ok", "/created", "/error", "/fast", "/slow", "/echo"}

func Handler(cfg ServerConfig) http.Handler {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// 201 counts as a failure for volley; useful to see that policy in action.
	mux.HandleFunc("/created", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"created"}`))
	})

	// Random failures
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		rnd := rand.Float32()
		if rnd < 0.2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("500 Internal Server Error"))
		} else if rnd < 0.4 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("429 Too Many Requests"))
		} else {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}
	})

	// 10-50ms
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		sleep(time.Duration(rand.IntN(40)+10) * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Fast response"))
	})

	// 1s-2s
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		sleep(time.Duration(rand.IntN(1000)+1000) * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Slow response"))
	})

	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("X-Echo-Method", r.Method)
		w.WriteHeader(http.StatusOK)
		io.Copy(w, r.Body)
	})

	return mux
}

// Start serves Handler on cfg.Port until ctx is cancelled.
func Start(ctx context.Context, cfg ServerConfig, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           Handler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("dummy server running",
		zap.String("address", "http://localhost"+server.Addr),
		zap.Strings("endpoints", Endpoints),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
