// Package gcs provides a Google Cloud Storage blob store profile.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/elasticmail/mailstore/blob"
)

// Store implements blob.Store using Google Cloud Storage.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)

// New creates a new GCS blob store.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := &options{
		prefix: "blobs",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	// Build client options
	clientOpts, err := buildClientOptions(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("build client options: %w", err)
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Store{
		client: client,
		bucket: o.bucket,
		prefix: o.prefix,
		logger: o.logger,
	}, nil
}

// buildClientOptions builds GCS client options based on authentication settings.
func buildClientOptions(_ context.Context, o *options) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	switch {
	case o.credentialsJSON != nil:
		// Use provided JSON credentials (service account key)
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
			CredentialsJSON: o.credentialsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials from json: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))

	case o.credentialsFile != "":
		// Use credentials from file
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
			CredentialsFile: o.credentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials from file: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))

	case o.apiKey != "":
		// Use API key (limited functionality, not recommended for production)
		opts = append(opts, option.WithAPIKey(o.apiKey))

	default:
		// Use Application Default Credentials (ADC)
		// This handles:
		// - GOOGLE_APPLICATION_CREDENTIALS environment variable
		// - gcloud auth application-default login credentials
		// - Workload Identity on GKE (service account annotation)
		// - Compute Engine default service account
		// - Cloud Run/Cloud Functions default service account
		// No explicit options needed - SDK handles it automatically
	}

	// Add custom endpoint if specified (for emulators, testing)
	if o.endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.endpoint))
	}

	return opts, nil
}

// Put uploads the blob content under its derived name.
func (s *Store) Put(ctx context.Context, name string, content io.Reader) error {
	key := s.key(name)

	obj := s.client.Bucket(s.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = "message/rfc822"

	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy content to gcs: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer: %w", err)
	}

	s.logger.Debug("uploaded blob to gcs", "bucket", s.bucket, "key", key)
	return nil
}

// Get returns a reader for the named blob.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucket).Object(s.key(name))
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, name)
		}
		return nil, fmt.Errorf("create gcs reader: %w", err)
	}

	return r, nil
}

// Delete removes the named blob. Deleting an absent blob succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.key(name)

	obj := s.client.Bucket(s.bucket).Object(key)
	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("delete object from gcs: %w", err)
	}

	s.logger.Debug("deleted blob from gcs", "bucket", s.bucket, "key", key)
	return nil
}

// Close closes the GCS client.
func (s *Store) Close() error {
	return s.client.Close()
}

// key maps a blob name to its GCS object key.
func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}
