package duck

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// IsS3URI reports whether a data location lives on S3-compatible storage.
func IsS3URI(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// ValidateDataURI checks that a data location is file://, s3:// or a bare
// local path. Glob patterns are allowed; they expand engine-side.
func ValidateDataURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("data URI is required")
	}
	if path, found := strings.CutPrefix(uri, "file://"); found {
		if path == "" {
			return fmt.Errorf("data URI file:// path cannot be empty")
		}
		return nil
	}
	if strings.HasPrefix(uri, "s3://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return fmt.Errorf("invalid s3:// URI format: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("s3:// URI must include a bucket name (e.g., s3://bucket-name/path)")
		}
		bucket := parsed.Host
		if len(bucket) < 3 || len(bucket) > 63 {
			return fmt.Errorf("s3 bucket name must be between 3 and 63 characters")
		}
		return nil
	}
	if strings.Contains(uri, "://") {
		return fmt.Errorf("data URI must be file://, s3:// or a local path (got: %q)", uri)
	}
	return nil
}

// ResolveDataURI converts a validated data location into the form the engine
// reads and writes directly: s3:// URIs pass through, file:// URIs and bare
// paths become absolute local paths.
func ResolveDataURI(uri string) (string, error) {
	if err := ValidateDataURI(uri); err != nil {
		return "", err
	}
	if IsS3URI(uri) {
		return uri, nil
	}
	path := strings.TrimPrefix(uri, "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %q: %w", path, err)
	}
	return abs, nil
}
