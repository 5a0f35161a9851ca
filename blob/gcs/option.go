package gcs

import (
	"log/slog"
)

// options holds GCS store configuration.
type options struct {
	bucket string
	prefix string

	// Emulator endpoint for tests
	endpoint string

	// Credential selection, mutually exclusive. With none set the client
	// uses Application Default Credentials (GOOGLE_APPLICATION_CREDENTIALS,
	// gcloud user credentials, or the metadata server on GCP).
	credentialsJSON []byte
	credentialsFile string
	apiKey          string

	logger *slog.Logger
}

// Option configures the GCS store.
type Option func(*options)

// WithBucket sets the bucket blobs are stored in. Required.
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the object name prefix, "blobs" by default.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithEndpoint points the client at a storage emulator.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithCredentialsJSON authenticates with an in-memory service account
// key.
func WithCredentialsJSON(json []byte) Option {
	return func(o *options) {
		o.credentialsJSON = json
	}
}

// WithCredentialsFile authenticates with a service account key file on
// disk.
func WithCredentialsFile(path string) Option {
	return func(o *options) {
		o.credentialsFile = path
	}
}

// WithAPIKey authenticates with an API key. API keys cannot express
// fine-grained storage permissions; service accounts are preferred.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
