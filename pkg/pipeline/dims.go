package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playbacklabs/songlake/pkg/duck"
)

// Dimension table names. The time dimension is named time_dim engine-side to
// stay clear of the TIME keyword; it still persists under the time/ subdir.
const (
	SongsTable   = "songs"
	ArtistsTable = "artists"
	UsersTable   = "users"
	TimeTable    = "time_dim"
)

// Every dedup below breaks ties with an explicit ORDER BY instead of relying
// on whatever order the engine delivers duplicates in.

// BuildSongs projects raw songs to the songs dimension, one row per song_id.
func BuildSongs(ctx context.Context, log *slog.Logger, conn duck.Connection) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT song_id, title, artist_id, year, duration
		FROM %s
		QUALIFY row_number() OVER (PARTITION BY song_id ORDER BY year DESC NULLS LAST, title) = 1`,
		SongsTable, RawSongsTable,
	)
	return buildTable(ctx, log, conn, SongsTable, query)
}

// BuildArtists projects and renames raw song columns to the artists
// dimension, one row per artist_id.
func BuildArtists(ctx context.Context, log *slog.Logger, conn duck.Connection) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT artist_id,
		       artist_name AS artist,
		       artist_location AS location,
		       artist_latitude AS latitude,
		       artist_longitude AS longitude
		FROM %s
		QUALIFY row_number() OVER (PARTITION BY artist_id ORDER BY artist_name) = 1`,
		ArtistsTable, RawSongsTable,
	)
	return buildTable(ctx, log, conn, ArtistsTable, query)
}

// BuildUsers derives the users dimension from NextSong events, one row per
// userId. The row with the highest ts survives, so a user's most recent
// level wins over earlier ones.
func BuildUsers(ctx context.Context, log *slog.Logger, conn duck.Connection) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT userId, firstName, lastName, gender, level
		FROM %s
		WHERE page = 'NextSong'
		QUALIFY row_number() OVER (PARTITION BY userId ORDER BY ts DESC) = 1`,
		UsersTable, RawLogsTable,
	)
	return buildTable(ctx, log, conn, UsersTable, query)
}

// BuildTime decomposes each distinct NextSong timestamp into calendar parts.
// Timestamps are interpreted as UTC so the derived fields do not depend on
// the host timezone; week is the ISO week number.
func BuildTime(ctx context.Context, log *slog.Logger, conn duck.Connection) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT start_time,
		       hour(start_time) AS hour,
		       day(start_time) AS day,
		       weekofyear(start_time) AS week,
		       month(start_time) AS month,
		       year(start_time) AS year
		FROM (SELECT DISTINCT epoch_ms(ts) AS start_time FROM %s WHERE page = 'NextSong')`,
		TimeTable, RawLogsTable,
	)
	return buildTable(ctx, log, conn, TimeTable, query)
}

func buildTable(ctx context.Context, log *slog.Logger, conn duck.Connection, tableName, query string) (int64, error) {
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("failed to build %s: %w", tableName, err)
	}
	var count int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", tableName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", tableName, err)
	}
	log.Info("built table", "table", tableName, "rows", count)
	return count, nil
}
