package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// S3Config holds the configuration for connecting to an S3-compatible object
// store. Compatible providers (MinIO, R2, iDrive e2) are supported via the
// Endpoint field.
type S3Config struct {
	// Endpoint is the S3-compatible endpoint URL. Leave empty for AWS S3.
	Endpoint string

	// Region is the AWS region or equivalent for the provider.
	Region string

	// Bucket holds the snapshot objects.
	Bucket string

	// Key is the object key of the snapshot, e.g. "soladia/snapshot.json".
	Key string

	AccessKey string
	SecretKey string

	// ForcePathStyle forces path-style addressing, required by many
	// S3-compatible providers.
	ForcePathStyle bool
}

// S3Store implements domain.SnapshotStore against an S3-compatible backend.
// Every save overwrites the same key; S3's read-after-write consistency makes
// the last completed save the one Load sees.
type S3Store struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Store creates an S3Store from the given configuration.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot: s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("snapshot: s3 region is required")
	}
	key := cfg.Key
	if key == "" {
		key = "soladia/snapshot.json"
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint))
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		key:    key,
	}, nil
}

// Health performs a HeadBucket call to verify connectivity and permissions.
func (s *S3Store) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("snapshot: s3 health check for bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Save uploads the snapshot as JSON. The upload manager splits large
// snapshots into concurrent parts automatically.
func (s *S3Store) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	uploader := manager.NewUploader(s.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("snapshot: upload %s: %w", s.key, err)
	}
	return nil
}

// Load downloads and decodes the latest snapshot. It returns
// domain.ErrNotFound when the object does not exist.
func (s *S3Store) Load(ctx context.Context) (domain.Snapshot, error) {
	buf := manager.NewWriteAtBuffer(nil)
	downloader := manager.NewDownloader(s.client)

	_, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("snapshot: download %s: %w", s.key, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: unmarshal %s: %w", s.key, err)
	}
	return snap, nil
}

// normaliseEndpoint ensures the endpoint has a scheme, defaulting to https.
func normaliseEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*S3Store)(nil)
