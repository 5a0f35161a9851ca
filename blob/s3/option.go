package s3

import (
	"log/slog"
)

const defaultSessionName = "mailstore"

// options holds S3 store configuration.
type options struct {
	bucket string
	prefix string
	region string

	// S3-compatible services (MinIO, LocalStack)
	endpoint     string
	usePathStyle bool

	// Credential selection. Static keys and role assumption are mutually
	// exclusive; with neither set the SDK's default chain applies
	// (env vars, shared config, instance roles, IRSA on EKS).
	accessKey       string
	secretKey       string
	sessionToken    string
	roleARN         string
	roleSessionName string
	externalID      string

	logger *slog.Logger
}

// Option configures the S3 store.
type Option func(*options)

// WithBucket sets the bucket blobs are stored in. Required.
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the object key prefix, "blobs" by default.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithRegion sets the AWS region, "us-east-1" by default.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithEndpoint points the client at an S3-compatible service instead of
// AWS. Most such services also need WithPathStyle.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithPathStyle switches to path-style bucket addressing.
func WithPathStyle(enabled bool) Option {
	return func(o *options) {
		o.usePathStyle = enabled
	}
}

// WithStaticCredentials authenticates with a fixed access key pair.
// Prefer the SDK's default credential chain (instance roles, IRSA)
// where the deployment supports it.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
	}
}

// WithSessionToken adds the session token that accompanies temporary
// static credentials issued by STS.
func WithSessionToken(token string) Option {
	return func(o *options) {
		o.sessionToken = token
	}
}

// WithAssumeRole authenticates by assuming the given IAM role through
// STS. An empty sessionName falls back to a fixed default.
func WithAssumeRole(roleARN, sessionName string) Option {
	return func(o *options) {
		o.roleARN = roleARN
		o.roleSessionName = sessionName
		if o.roleSessionName == "" {
			o.roleSessionName = defaultSessionName
		}
	}
}

// WithExternalID sets the external id some cross-account roles require
// during assumption.
func WithExternalID(externalID string) Option {
	return func(o *options) {
		o.externalID = externalID
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
