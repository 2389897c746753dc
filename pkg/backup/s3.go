package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures off-host replication of the backup file.
type S3Config struct {
	// Bucket is the S3 bucket receiving backup copies
	Bucket string

	// Prefix is prepended to the object key (e.g., "reelsheet/")
	Prefix string

	// Region is the AWS region
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout for S3 operations
	Timeout time.Duration
}

// DefaultS3Config returns sensible defaults.
func DefaultS3Config(bucket string) S3Config {
	return S3Config{
		Bucket:  bucket,
		Prefix:  "reelsheet/",
		Timeout: 30 * time.Second,
	}
}

// S3Replicator copies the local backup CSV to S3 so a lost host does not
// mean lost rows. Replication is best effort and never blocks an append.
type S3Replicator struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Replicator creates a replicator for the configured bucket.
func NewS3Replicator(ctx context.Context, cfg S3Config) (*S3Replicator, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Replicator{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// Replicate uploads the backup file as a dated object plus a "latest"
// alias. A missing local file is not an error; there is nothing to copy.
func (r *S3Replicator) Replicate(ctx context.Context, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := os.ReadFile(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	dated := fmt.Sprintf("%sbackup-%s.csv", r.cfg.Prefix, time.Now().UTC().Format("2006-01-02"))
	for _, key := range []string{dated, r.cfg.Prefix + "backup-latest.csv"} {
		_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(r.cfg.Bucket),
			Key:          aws.String(key),
			Body:         bytes.NewReader(data),
			ContentType:  aws.String("text/csv"),
			StorageClass: types.StorageClassStandard,
		})
		if err != nil {
			return fmt.Errorf("failed to replicate backup to S3: %w", err)
		}
	}
	return nil
}
