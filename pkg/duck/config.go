package duck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for S3-compatible storage (AWS S3, MinIO, etc.)
// The two opaque secret strings are passed through to the engine's secret
// store verbatim; their format is never parsed here.
type S3Config struct {
	AccessKeyID     string // S3 access key ID
	SecretAccessKey string // S3 secret access key
	Endpoint        string // S3 endpoint URL (e.g. "http://localhost:9000" for MinIO, empty for AWS)
	Region          string // S3 region (e.g. "us-east-1")
	UseSSL          bool   // typically false for MinIO, true for AWS
	URLStyle        string // "path" (MinIO) or "virtual" (AWS)
}

// LoadS3ConfigFromEnv loads S3 configuration from environment variables.
// Supports both AWS S3 and MinIO, including credential-chain setups where no
// explicit key pair is present.
//
// Environment variables:
//   - S3_ACCESS_KEY_ID or AWS_ACCESS_KEY_ID (optional; leave unset to use the IAM role)
//   - S3_SECRET_ACCESS_KEY or AWS_SECRET_ACCESS_KEY (optional)
//   - S3_ENDPOINT or AWS_ENDPOINT_URL (optional, for MinIO)
//   - S3_REGION or AWS_REGION (optional, defaults to "us-east-1")
//   - S3_USE_SSL, S3_URL_STYLE (optional overrides)
//
// Returns (nil, nil) when no credentials are configured at all; the caller may
// still build a chain-based config for s3:// locations.
func LoadS3ConfigFromEnv() (*S3Config, error) {
	accessKeyID := os.Getenv("S3_ACCESS_KEY_ID")
	if accessKeyID == "" {
		accessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	secretAccessKey := os.Getenv("S3_SECRET_ACCESS_KEY")
	if secretAccessKey == "" {
		secretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	if accessKeyID == "" && secretAccessKey == "" {
		return nil, nil
	}
	if accessKeyID == "" && secretAccessKey != "" {
		return nil, fmt.Errorf("S3_SECRET_ACCESS_KEY is set but S3_ACCESS_KEY_ID is missing")
	}
	if accessKeyID != "" && secretAccessKey == "" {
		return nil, fmt.Errorf("S3_ACCESS_KEY_ID is set but S3_SECRET_ACCESS_KEY is missing")
	}

	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	region := os.Getenv("S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	isMinIO := endpoint != "" && !strings.Contains(endpoint, "amazonaws.com")
	useSSL := !isMinIO
	urlStyle := "path"

	if useSSLStr := os.Getenv("S3_USE_SSL"); useSSLStr != "" {
		useSSL = useSSLStr == "true" || useSSLStr == "1"
	}
	if urlStyleEnv := os.Getenv("S3_URL_STYLE"); urlStyleEnv != "" {
		urlStyle = urlStyleEnv
	}

	return &S3Config{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		Endpoint:        endpoint,
		Region:          region,
		UseSSL:          useSSL,
		URLStyle:        urlStyle,
	}, nil
}

// PrepareS3Config returns the S3 config to use for a set of data locations, or
// nil when none of them is on S3. For MinIO endpoints an explicit key pair is
// required; for AWS a missing key pair falls back to the credential chain.
func PrepareS3Config(ctx context.Context, log *slog.Logger, uris ...string) (*S3Config, error) {
	anyS3 := false
	for _, uri := range uris {
		if IsS3URI(uri) {
			anyS3 = true
			break
		}
	}
	if !anyS3 {
		return nil, nil
	}

	cfg, err := LoadS3ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}
	if cfg == nil {
		region := os.Getenv("S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		endpoint := os.Getenv("S3_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("AWS_ENDPOINT_URL")
		}
		cfg = &S3Config{
			Endpoint: endpoint,
			Region:   region,
			UseSSL:   true,
			URLStyle: "path",
		}
	}

	isMinIO := cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "amazonaws.com")
	if isMinIO && (cfg.AccessKeyID == "" || cfg.SecretAccessKey == "") {
		return nil, fmt.Errorf("MinIO requires both S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY to be set (endpoint: %s)", cfg.Endpoint)
	}

	return cfg, nil
}

// EnsureBucket checks whether the bucket of an s3:// output location exists on
// a localhost MinIO endpoint and creates it if not. Real AWS buckets are never
// auto-created.
func EnsureBucket(ctx context.Context, log *slog.Logger, storageURI string, s3cfg *S3Config) error {
	if s3cfg == nil || s3cfg.Endpoint == "" {
		return nil
	}

	endpoint := s3cfg.Endpoint
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	if !strings.HasPrefix(endpoint, "localhost") && !strings.HasPrefix(endpoint, "127.0.0.1") && !strings.Contains(endpoint, "host.docker.internal") {
		return nil
	}

	if !strings.HasPrefix(storageURI, "s3://") {
		return nil
	}
	path := strings.TrimPrefix(storageURI, "s3://")
	bucketName := strings.SplitN(path, "/", 2)[0]
	if bucketName == "" {
		return nil
	}

	if s3cfg.AccessKeyID == "" || s3cfg.SecretAccessKey == "" {
		return fmt.Errorf("MinIO requires both S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY to be set")
	}
	creds := credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s3cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpointURL := s3cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		endpointURL = "http://" + endpointURL
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpointURL
		o.UsePathStyle = true // Required for MinIO
	})

	_, err = s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucketName})
	if err == nil {
		return nil
	}

	log.Info("creating MinIO bucket", "bucket", bucketName, "endpoint", s3cfg.Endpoint)
	_, err = s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &bucketName})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}
	return nil
}
