package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/playbacklabs/songlake/pkg/duck"
)

// Raw table names. Each reader materializes one logical table regardless of
// how many physical files the source glob expands to.
const (
	RawSongsTable = "raw_songs"
	RawLogsTable  = "raw_logs"
)

// ReadSongs loads song metadata records from sourceURI into raw_songs.
func ReadSongs(ctx context.Context, log *slog.Logger, conn duck.Connection, sourceURI string) (int64, error) {
	return readRaw(ctx, log, conn, RecordSong, RawSongsTable, sourceURI)
}

// ReadLogs loads usage log events from sourceURI into raw_logs.
func ReadLogs(ctx context.Context, log *slog.Logger, conn duck.Connection, sourceURI string) (int64, error) {
	return readRaw(ctx, log, conn, RecordLog, RawLogsTable, sourceURI)
}

// readRaw materializes one raw table from newline-delimited JSON, with the
// registry schema pinned so type-incompatible records fail the read. There is
// no skip-bad-records mode: the first malformed record aborts the run.
func readRaw(ctx context.Context, log *slog.Logger, conn duck.Connection, recordType, tableName, sourceURI string) (int64, error) {
	cols, err := Columns(recordType)
	if err != nil {
		return 0, err
	}
	location, err := duck.ResolveDataURI(sourceURI)
	if err != nil {
		return 0, fmt.Errorf("invalid %s source: %w", recordType, err)
	}

	log.Debug("reading raw records", "type", recordType, "source", location)

	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_json('%s', format = 'newline_delimited', columns = %s)`,
		tableName, escapeSQLString(location), readJSONColumns(cols),
	)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		if isConversionError(err) {
			return 0, fmt.Errorf("%w: %s records at %s: %v", ErrSchemaViolation, recordType, sourceURI, err)
		}
		return 0, fmt.Errorf("failed to read %s records from %s: %w", recordType, sourceURI, err)
	}

	if err := checkRequired(ctx, conn, tableName, requiredColumns(cols)); err != nil {
		return 0, fmt.Errorf("%s records at %s: %w", recordType, sourceURI, err)
	}

	var count int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", tableName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", tableName, err)
	}
	log.Info("loaded raw records", "type", recordType, "table", tableName, "rows", count)
	return count, nil
}

// checkRequired enforces the registry's nullability constraints: any NULL in
// a required column means a record arrived without that field.
func checkRequired(ctx context.Context, conn duck.Connection, tableName string, required []string) error {
	for _, col := range required {
		var nulls int64
		query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s IS NULL`, tableName, col)
		if err := conn.QueryRowContext(ctx, query).Scan(&nulls); err != nil {
			return fmt.Errorf("failed to check column %s: %w", col, err)
		}
		if nulls > 0 {
			return fmt.Errorf("%w: %d records missing required field %s", ErrSchemaViolation, nulls, col)
		}
	}
	return nil
}

// isConversionError reports whether an engine error came from a value that
// could not take its declared column type.
func isConversionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Conversion Error") ||
		strings.Contains(errStr, "Could not convert") ||
		strings.Contains(errStr, "Invalid Input Error")
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
