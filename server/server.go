// Package server exposes the bot's observability surface: health, the last
// run's status, and Prometheus metrics. It injects correlation ids into
// request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thawbot/thawbot/db"
	"github.com/thawbot/thawbot/monitor"
	"github.com/thawbot/thawbot/telemetry"
)

// NewMux returns the HTTP handler with all routes. The database may be nil
// when history recording is disabled.
func NewMux(m *monitor.Monitor, database *sql.DB) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if database != nil {
			if err := database.PingContext(r.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		run := m.LastRun()
		w.Header().Set("Content-Type", "application/json")
		if run == nil {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "no scan completed yet"})
			return
		}
		_ = json.NewEncoder(w).Encode(run)
	})

	// Persisted per-room scan rows for one run, defaulting to the latest.
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if database == nil {
			http.Error(w, "history disabled", http.StatusNotFound)
			return
		}
		runID := r.URL.Query().Get("run")
		if runID == "" {
			if run := m.LastRun(); run != nil {
				runID = run.RunID
			}
		}
		if runID == "" {
			http.Error(w, "no run recorded yet", http.StatusNotFound)
			return
		}
		scans, err := db.ScansForRun(r.Context(), database, runID)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Error("history query failed", slog.Any("err", err))
			http.Error(w, "history query failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(scans)
	})

	// Correlation id injector and tracing wrapper.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))

		if rec.statusCode >= 400 {
			telemetry.RecordError(span, &httpError{status: rec.statusCode})
		}
	})
}

type httpError struct{ status int }

func (e *httpError) Error() string { return http.StatusText(e.status) }

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context
// cancellation.
func Start(ctx context.Context, m *monitor.Monitor, database *sql.DB, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(m, database),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
