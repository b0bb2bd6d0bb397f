// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	LoginsSucceeded    prometheus.Counter
	LoginsFailed       prometheus.Counter
	ResolvesSucceeded  prometheus.Counter
	ResolvesFailed     prometheus.Counter
	DownloadsSucceeded prometheus.Counter
	DownloadsFailed    prometheus.Counter
	UploadsSucceeded   prometheus.Counter
	UploadsFailed      prometheus.Counter
	RepostsStarted     prometheus.Counter

	// Histograms (seconds)
	ResolveDuration  prometheus.Observer
	DownloadDuration prometheus.Observer
	UploadDuration   prometheus.Observer
	RepostDuration   prometheus.Observer

	// Gauges
	ActiveRepostsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LoginsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_logins_succeeded_total", Help: "Number of successful account logins"})
		LoginsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_logins_failed_total", Help: "Number of failed account logins"})
		ResolvesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_resolves_succeeded_total", Help: "Number of post references resolved to media"})
		ResolvesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_resolves_failed_total", Help: "Number of post references that exhausted all resolution strategies"})
		DownloadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_downloads_succeeded_total", Help: "Number of media sets fully downloaded"})
		DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_downloads_failed_total", Help: "Number of media downloads failed"})
		UploadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_uploads_succeeded_total", Help: "Number of confirmed publishes"})
		UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_uploads_failed_total", Help: "Number of failed publishes"})
		RepostsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "repost_requests_total", Help: "Number of repost requests started"})
		ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "repost_resolve_duration_seconds", Help: "Reference resolution duration seconds", Buckets: prometheus.DefBuckets})
		DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "repost_download_duration_seconds", Help: "Media download duration seconds", Buckets: prometheus.DefBuckets})
		UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "repost_upload_duration_seconds", Help: "Publish duration seconds", Buckets: prometheus.DefBuckets})
		RepostDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "repost_total_duration_seconds", Help: "End-to-end repost duration seconds", Buckets: prometheus.DefBuckets})
		ActiveRepostsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "repost_active", Help: "Repost requests currently in flight"})
	})
}

// IncLogin bumps the login outcome counter if metrics are registered.
func IncLogin(ok bool) { incOutcome(ok, LoginsSucceeded, LoginsFailed) }

// IncResolve bumps the resolution outcome counter if metrics are registered.
func IncResolve(ok bool) { incOutcome(ok, ResolvesSucceeded, ResolvesFailed) }

// IncDownload bumps the download outcome counter if metrics are registered.
func IncDownload(ok bool) { incOutcome(ok, DownloadsSucceeded, DownloadsFailed) }

// IncUpload bumps the publish outcome counter if metrics are registered.
func IncUpload(ok bool) { incOutcome(ok, UploadsSucceeded, UploadsFailed) }

func incOutcome(ok bool, succ, fail prometheus.Counter) {
	if ok {
		if succ != nil {
			succ.Inc()
		}
	} else if fail != nil {
		fail.Inc()
	}
}

// TrackActive bumps the in-flight gauge and returns the matching decrement.
func TrackActive() func() {
	if RepostsStarted != nil {
		RepostsStarted.Inc()
	}
	if ActiveRepostsGauge == nil {
		return func() {}
	}
	ActiveRepostsGauge.Inc()
	return func() { ActiveRepostsGauge.Dec() }
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// ObserveSince records the time elapsed since start in observer if non-nil.
// Meant for deferred use at the top of a timed operation.
func ObserveSince(obs prometheus.Observer, start time.Time) {
	if obs != nil {
		obs.Observe(time.Since(start).Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
