// Package s3 provides an AWS S3 blob store profile.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/elasticmail/mailstore/blob"
)

// Store implements blob.Store using AWS S3 or an S3-compatible service.
type Store struct {
	client *s3.Client
	tm     *transfermanager.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)

// New creates a new S3 blob store.
// The context is used for AWS credential loading and configuration.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := &options{
		region: "us-east-1",
		prefix: "blobs",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	awsCfg, err := buildAWSConfig(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(opts *s3.Options) {
		if o.endpoint != "" {
			opts.BaseEndpoint = aws.String(o.endpoint)
			opts.UsePathStyle = o.usePathStyle
		}
	})

	return &Store{
		client: client,
		tm:     transfermanager.New(client),
		bucket: o.bucket,
		prefix: o.prefix,
		logger: o.logger,
	}, nil
}

// buildAWSConfig builds AWS config based on authentication options.
func buildAWSConfig(ctx context.Context, o *options) (aws.Config, error) {
	var optFns []func(*config.LoadOptions) error

	optFns = append(optFns, config.WithRegion(o.region))

	switch {
	case o.accessKey != "" && o.secretKey != "":
		// Static credentials (Access Key + Secret Key)
		creds := credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, o.sessionToken)
		optFns = append(optFns, config.WithCredentialsProvider(creds))

	case o.roleARN != "":
		// Role assumption needs a base identity first, so the default
		// chain is loaded once to feed the STS client.
		baseCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("load base config for role: %w", err)
		}
		optFns = append(optFns, config.WithCredentialsProvider(assumeRole(baseCfg, o)))

	default:
		// Default credential chain: env vars, shared config, EC2/ECS
		// instance roles, IRSA on EKS. No explicit credentials needed.
	}

	return config.LoadDefaultConfig(ctx, optFns...)
}

// assumeRole wraps the base identity in an STS role-assumption provider.
func assumeRole(base aws.Config, o *options) aws.CredentialsProvider {
	return stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), o.roleARN,
		func(aro *stscreds.AssumeRoleOptions) {
			if o.roleSessionName != "" {
				aro.RoleSessionName = o.roleSessionName
			}
			if o.externalID != "" {
				aro.ExternalID = aws.String(o.externalID)
			}
		})
}

// Put uploads the blob content under its derived name.
func (s *Store) Put(ctx context.Context, name string, content io.Reader) error {
	key := s.key(name)

	input := &transfermanager.UploadObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String("message/rfc822"),
	}

	if _, err := s.tm.UploadObject(ctx, input); err != nil {
		return fmt.Errorf("upload blob to s3: %w", err)
	}

	s.logger.Debug("uploaded blob to s3", "bucket", s.bucket, "key", key)
	return nil
}

// Get returns a reader for the named blob.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, name)
		}
		return nil, fmt.Errorf("get blob from s3: %w", err)
	}

	return output.Body, nil
}

// Delete removes the named blob. S3 deletes are idempotent, so deleting
// an absent blob succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.key(name)

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete blob from s3: %w", err)
	}

	s.logger.Debug("deleted blob from s3", "bucket", s.bucket, "key", key)
	return nil
}

// key maps a blob name to its S3 object key.
func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}
