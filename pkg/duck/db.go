package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DB is a handle on a DuckDB engine session. The pipeline treats it as an
// opaque relational engine: it only ever asks for connections and issues SQL.
type DB interface {
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

type duckDB struct {
	log *slog.Logger
	db  *sql.DB
}

type duckConn struct {
	conn *sql.Conn
}

func (c *duckConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *duckConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *duckConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *duckConn) Close() error {
	return c.conn.Close()
}

// NewDB opens an in-memory DuckDB session. If s3cfg is non-nil, the httpfs and
// aws extensions are installed and an S3 secret is created from the explicit
// credentials, so s3:// locations become readable and writable for the whole
// session. Credentials never touch the process environment.
func NewDB(ctx context.Context, log *slog.Logger, s3cfg *S3Config) (DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single batch run only needs one writer connection, but allow a small
	// pool for concurrent reads during verification queries.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if s3cfg != nil {
		for _, ext := range []string{"httpfs", "aws"} {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL '%s'", ext)); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to install extension %s: %w", ext, err)
			}
			if _, err := db.ExecContext(ctx, fmt.Sprintf("LOAD '%s'", ext)); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to load extension %s: %w", ext, err)
			}
		}
		if _, err := db.ExecContext(ctx, s3SecretSQL(s3cfg)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create S3 secret: %w", err)
		}
		log.Info("configured S3 storage", "endpoint", s3cfg.Endpoint, "region", s3cfg.Region)
	}

	return &duckDB{log: log, db: db}, nil
}

func (d *duckDB) Conn(ctx context.Context) (Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &duckConn{conn: conn}, nil
}

func (d *duckDB) Close() error {
	return d.db.Close()
}

// s3SecretSQL builds the CREATE SECRET statement for the session. When no
// explicit key pair is given, the AWS credential chain covers IAM roles and
// instance metadata.
func s3SecretSQL(cfg *S3Config) string {
	secretSQL := "CREATE SECRET IF NOT EXISTS s3_secret (TYPE s3"
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		secretSQL += fmt.Sprintf(", KEY_ID '%s'", strings.ReplaceAll(cfg.AccessKeyID, "'", "''"))
		secretSQL += fmt.Sprintf(", SECRET '%s'", strings.ReplaceAll(cfg.SecretAccessKey, "'", "''"))
	} else {
		secretSQL += ", PROVIDER credential_chain"
	}
	if cfg.Endpoint != "" {
		// DuckDB's S3 secret ENDPOINT expects host:port, not a full URL.
		endpoint := cfg.Endpoint
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		secretSQL += fmt.Sprintf(", ENDPOINT '%s'", endpoint)
	}
	if cfg.Region != "" {
		secretSQL += fmt.Sprintf(", REGION '%s'", cfg.Region)
	}
	urlStyle := cfg.URLStyle
	if urlStyle == "" {
		urlStyle = "path"
	}
	secretSQL += fmt.Sprintf(", URL_STYLE '%s'", urlStyle)
	secretSQL += fmt.Sprintf(", USE_SSL %t", cfg.UseSSL)
	secretSQL += ")"
	return secretSQL
}
