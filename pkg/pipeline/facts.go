package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playbacklabs/songlake/pkg/duck"
)

const SongplaysTable = "songplays"

// JoinMode selects how plays with no matching song record are handled.
type JoinMode string

const (
	// JoinModeInner drops plays whose (song, artist) pair matches no song
	// record. Lossy but referentially strict.
	JoinModeInner JoinMode = "inner"
	// JoinModeLeft keeps unmatched plays with NULL song_id and artist_id.
	JoinModeLeft JoinMode = "left"
)

func (m JoinMode) Validate() error {
	switch m {
	case JoinModeInner, JoinModeLeft:
		return nil
	default:
		return fmt.Errorf("invalid join mode %q (must be %q or %q)", m, JoinModeInner, JoinModeLeft)
	}
}

// BuildSongplays joins NextSong events against raw song records on exact
// (song = title AND artist = artist_name) equality, case-sensitive, no fuzzy
// matching. songplay_id is a dense per-run row number over a deterministic
// event ordering; values are unique within a run but not stable across runs.
func BuildSongplays(ctx context.Context, log *slog.Logger, conn duck.Connection, mode JoinMode) (int64, error) {
	if err := mode.Validate(); err != nil {
		return 0, err
	}
	joinKind := "JOIN"
	if mode == JoinModeLeft {
		joinKind = "LEFT JOIN"
	}
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT row_number() OVER (ORDER BY l.ts, l.sessionId, l.userId) - 1 AS songplay_id,
		       epoch_ms(l.ts) AS start_time,
		       l.userId,
		       l.level,
		       s.song_id,
		       s.artist_id,
		       l.sessionId,
		       l.location,
		       l.userAgent,
		       year(epoch_ms(l.ts)) AS year,
		       month(epoch_ms(l.ts)) AS month
		FROM %s l
		%s %s s ON l.song = s.title AND l.artist = s.artist_name
		WHERE l.page = 'NextSong'`,
		SongplaysTable, RawLogsTable, joinKind, RawSongsTable,
	)
	count, err := buildTable(ctx, log, conn, SongplaysTable, query)
	if err != nil {
		return 0, err
	}
	log.Debug("fact join complete", "mode", string(mode), "rows", count)
	return count, nil
}
