// Package telemetry provides Prometheus metrics, OpenTelemetry tracing
// setup, and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	RoomsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thawbot_rooms_scanned_total", Help: "Number of room scans attempted"})
	RoomScanFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thawbot_room_scan_failures_total", Help: "Number of room scans that ended in an error"})
	NoticesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thawbot_notices_sent_total", Help: "Number of thawing notices posted"})
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thawbot_transcript_pages_fetched_total", Help: "Number of transcript pages fetched"})
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thawbot_fetch_retries_total", Help: "Number of HTTP fetch retries (rate limiting and transient failures)"})

	// Histograms (seconds)
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "thawbot_room_scan_duration_seconds", Help: "Duration of one room scan",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 12)})

	// Gauges
	LastRunUnix = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thawbot_last_run_timestamp_seconds", Help: "Unix time the last full scan finished"})
	StaleRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thawbot_stale_rooms", Help: "Rooms flagged stale in the last run"})
)

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger carrying the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
