package mailstore

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/elasticmail/mailstore/blob"
	"github.com/elasticmail/mailstore/store"
	"github.com/elasticmail/mailstore/throttle"
)

// Default configuration values.
const (
	// DefaultBlobProfile is the storage profile new blobs are written to
	// when no profile is named explicitly.
	DefaultBlobProfile = "default"

	// DefaultQuota is the per-mailbox byte quota.
	DefaultQuota = 15 * 1024 * 1024 * 1024 // 15 GB

	// Purge configuration: soft-deleted messages older than the purge age
	// are permanently removed by Purge.
	DefaultPurgeAge = 30 * 24 * time.Hour // 30 days
	MinPurgeAge     = 24 * time.Hour      // 1 day minimum

	// Scan limits
	DefaultScanLimit = 50   // default messages per index scan
	MaxScanLimit     = 1000 // hard cap per index scan

	// Concurrency limits
	DefaultMaxConcurrentMaintenance = 4 // max concurrent purge/scrub runs per service

	// Label limits
	MaxLabelNameLength = 225 // max label name length in bytes
)

// options holds mailstore configuration.
type options struct {
	store  store.Store
	logger *slog.Logger

	// Blob layer
	blobs          map[string]blob.Store
	defaultProfile string
	namer          blob.Namer
	codec          blob.Codec

	// Quota
	quota        int64
	messageQuota int64

	// Batch write pacing
	opsPerWindow int
	window       time.Duration

	// Purge configuration
	purgeAge time.Duration

	// Scan limits
	defaultScanLimit int
	maxScanLimit     int

	// Concurrency limits
	maxConcurrentMaintenance int

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:         slog.Default(),
		blobs:          make(map[string]blob.Store),
		defaultProfile: DefaultBlobProfile,
		namer:          blob.FlatNamer{},
		quota:          DefaultQuota,
		opsPerWindow:   throttle.DefaultOpsPerWindow,
		window:         throttle.DefaultWindow,
		purgeAge:       DefaultPurgeAge,

		defaultScanLimit: DefaultScanLimit,
		maxScanLimit:     MaxScanLimit,

		maxConcurrentMaintenance: DefaultMaxConcurrentMaintenance,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.defaultScanLimit > o.maxScanLimit {
		o.defaultScanLimit = o.maxScanLimit
	}

	return o
}

// Option configures a mailstore service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the metadata storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// --- Blob Options ---

// WithBlobStore registers a blob store under a profile name. At least one
// profile is required. Register multiple profiles to read blobs written
// to older backends during a storage migration.
func WithBlobStore(profile string, s blob.Store) Option {
	return func(o *options) {
		if profile != "" && s != nil {
			o.blobs[profile] = s
		}
	}
}

// WithDefaultBlobProfile selects the profile new blobs are written to.
// Default is "default". Existing blobs are always read from the profile
// recorded in their location.
func WithDefaultBlobProfile(profile string) Option {
	return func(o *options) {
		if profile != "" {
			o.defaultProfile = profile
		}
	}
}

// WithBlobNamer sets the blob naming policy.
// Default is blob.FlatNamer. Changing the namer only affects new blobs;
// existing blobs keep the name recorded in their location.
func WithBlobNamer(n blob.Namer) Option {
	return func(o *options) {
		if n != nil {
			o.namer = n
		}
	}
}

// WithBlobCodec sets the compression/encryption codec applied to new
// blobs. The codec's keyring must also hold the keys of every alias that
// older blobs were encrypted under.
func WithBlobCodec(c blob.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// --- Quota Options ---

// WithQuota sets the per-mailbox byte quota.
// Default is 15 GB. Zero or negative disables the quota check.
func WithQuota(bytes int64) Option {
	return func(o *options) {
		o.quota = bytes
	}
}

// WithMessageQuota sets the per-mailbox message count quota.
// Default is unlimited. Zero or negative disables the check.
func WithMessageQuota(messages int64) Option {
	return func(o *options) {
		o.messageQuota = messages
	}
}

// --- Throttle Options ---

// WithWriteRate sets the pacing for batch mutations: at most opsPerWindow
// storage operations per window. A batch of N operations takes at least
// N/opsPerWindow windows.
// Default is 100 operations per 500ms.
func WithWriteRate(opsPerWindow int, window time.Duration) Option {
	return func(o *options) {
		if opsPerWindow > 0 && window > 0 {
			o.opsPerWindow = opsPerWindow
			o.window = window
		}
	}
}

// --- Purge Options ---

// WithPurgeAge sets how long soft-deleted messages are retained before
// Purge permanently removes them.
// Default is 30 days. Minimum is 1 day.
func WithPurgeAge(d time.Duration) Option {
	return func(o *options) {
		if d >= MinPurgeAge {
			o.purgeAge = d
		}
	}
}

// --- Scan Options ---

// WithDefaultScanLimit sets the page size used when a scan requests zero
// or negative count. If this exceeds MaxScanLimit it is capped.
// Default is 50.
func WithDefaultScanLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultScanLimit = n
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentMaintenance sets the maximum number of concurrent
// purge/scrub runs per service. These operations walk whole mailboxes;
// the cap prevents maintenance from starving interactive traffic.
// Default is 4.
func WithMaxConcurrentMaintenance(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentMaintenance = n
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// When enabled, spans are created for all mailstore operations.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// When enabled, metrics are collected for all mailstore operations.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
// This is a convenience function equivalent to calling
// WithTracing(true) and WithMetrics(true).
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for OpenTelemetry telemetry.
// Default is "mailstore".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}
