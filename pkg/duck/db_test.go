package duck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDB(t *testing.T) {
	t.Parallel()

	t.Run("opens a working in-memory session", func(t *testing.T) {
		t.Parallel()

		db, conn, err := testDBWithConn(t)
		require.NoError(t, err)
		defer db.Close()
		defer conn.Close()

		var answer int
		err = conn.QueryRowContext(context.Background(), "SELECT 41 + 1").Scan(&answer)
		require.NoError(t, err)
		require.Equal(t, 42, answer)
	})

	t.Run("hands out independent connections", func(t *testing.T) {
		t.Parallel()

		db, conn, err := testDBWithConn(t)
		require.NoError(t, err)
		defer db.Close()
		defer conn.Close()

		_, err = conn.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)")
		require.NoError(t, err)

		other, err := db.Conn(context.Background())
		require.NoError(t, err)
		defer other.Close()

		var count int
		err = other.QueryRowContext(context.Background(), "SELECT count(*) FROM t").Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 0, count)
	})
}

func TestS3SecretSQL(t *testing.T) {
	t.Parallel()

	t.Run("explicit credentials", func(t *testing.T) {
		t.Parallel()

		got := s3SecretSQL(&S3Config{
			AccessKeyID:     "AKIA123",
			SecretAccessKey: "shh",
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			URLStyle:        "path",
		})
		require.Contains(t, got, "KEY_ID 'AKIA123'")
		require.Contains(t, got, "SECRET 'shh'")
		require.Contains(t, got, "ENDPOINT 'localhost:9000'")
		require.Contains(t, got, "REGION 'us-east-1'")
		require.Contains(t, got, "URL_STYLE 'path'")
		require.Contains(t, got, "USE_SSL false")
		require.NotContains(t, got, "credential_chain")
	})

	t.Run("falls back to credential chain without keys", func(t *testing.T) {
		t.Parallel()

		got := s3SecretSQL(&S3Config{Region: "eu-west-1", UseSSL: true})
		require.Contains(t, got, "PROVIDER credential_chain")
		require.Contains(t, got, "USE_SSL true")
		require.NotContains(t, got, "KEY_ID")
	})

	t.Run("escapes quotes in secrets", func(t *testing.T) {
		t.Parallel()

		got := s3SecretSQL(&S3Config{AccessKeyID: "a'b", SecretAccessKey: "c'd"})
		require.Contains(t, got, "KEY_ID 'a''b'")
		require.Contains(t, got, "SECRET 'c''d'")
	})
}

func TestLoadS3ConfigFromEnv(t *testing.T) {
	t.Run("returns nil when unconfigured", func(t *testing.T) {
		t.Setenv("S3_ACCESS_KEY_ID", "")
		t.Setenv("AWS_ACCESS_KEY_ID", "")
		t.Setenv("S3_SECRET_ACCESS_KEY", "")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "")

		cfg, err := LoadS3ConfigFromEnv()
		require.NoError(t, err)
		require.Nil(t, cfg)
	})

	t.Run("errors on a lone secret", func(t *testing.T) {
		t.Setenv("S3_ACCESS_KEY_ID", "")
		t.Setenv("AWS_ACCESS_KEY_ID", "")
		t.Setenv("S3_SECRET_ACCESS_KEY", "shh")

		_, err := LoadS3ConfigFromEnv()
		require.Error(t, err)
	})

	t.Run("detects MinIO defaults from endpoint", func(t *testing.T) {
		t.Setenv("S3_ACCESS_KEY_ID", "minio")
		t.Setenv("S3_SECRET_ACCESS_KEY", "minio123")
		t.Setenv("S3_ENDPOINT", "http://localhost:9000")
		t.Setenv("S3_REGION", "")
		t.Setenv("AWS_REGION", "")

		cfg, err := LoadS3ConfigFromEnv()
		require.NoError(t, err)
		require.NotNil(t, cfg)
		require.False(t, cfg.UseSSL)
		require.Equal(t, "path", cfg.URLStyle)
		require.Equal(t, "us-east-1", cfg.Region)
	})
}

func TestPrepareS3Config(t *testing.T) {
	t.Run("nil when no location is on s3", func(t *testing.T) {
		cfg, err := PrepareS3Config(context.Background(), testLogger(), "file:///tmp/in", "/tmp/out")
		require.NoError(t, err)
		require.Nil(t, cfg)
	})

	t.Run("errors for MinIO without credentials", func(t *testing.T) {
		t.Setenv("S3_ACCESS_KEY_ID", "")
		t.Setenv("AWS_ACCESS_KEY_ID", "")
		t.Setenv("S3_SECRET_ACCESS_KEY", "")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "")
		t.Setenv("S3_ENDPOINT", "http://localhost:9000")

		_, err := PrepareS3Config(context.Background(), testLogger(), "s3://bucket/out")
		require.Error(t, err)
	})
}
