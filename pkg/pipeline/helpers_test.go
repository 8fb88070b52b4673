package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/playbacklabs/songlake/pkg/duck"
)

// failingConn fails every statement, for asserting how engine errors are
// wrapped on the build and write paths.
type failingConn struct{}

func (failingConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, errors.New("database error")
}

func (failingConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("database error")
}

func (failingConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (failingConn) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestConn opens an in-memory engine session torn down with the test.
func newTestConn(t *testing.T) duck.Connection {
	t.Helper()
	ctx := context.Background()

	db, err := duck.NewDB(ctx, testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// newTestDB opens an in-memory engine for tests that need the DB handle.
func newTestDB(t *testing.T) duck.DB {
	t.Helper()

	db, err := duck.NewDB(context.Background(), testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// writeNDJSON writes one newline-delimited JSON fixture file and returns its path.
func writeNDJSON(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

// createRawTables creates empty raw tables straight from the registry, for
// builder tests that seed rows with INSERTs instead of files.
func createRawTables(t *testing.T, conn duck.Connection) {
	t.Helper()
	ctx := context.Background()

	for _, rt := range []struct{ tag, table string }{
		{RecordSong, RawSongsTable},
		{RecordLog, RawLogsTable},
	} {
		cols, err := Columns(rt.tag)
		require.NoError(t, err)
		defs := make([]string, 0, len(cols))
		for _, c := range cols {
			defs = append(defs, fmt.Sprintf("%s %s", c.Name, c.Type))
		}
		_, err = conn.ExecContext(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", rt.table, strings.Join(defs, ", ")))
		require.NoError(t, err)
	}
}

func insertSong(t *testing.T, conn duck.Connection, songID, title, artistID, artistName string, year int, duration float64) {
	t.Helper()

	_, err := conn.ExecContext(context.Background(),
		fmt.Sprintf(`INSERT INTO %s (song_id, title, artist_id, artist_name, year, duration) VALUES (?, ?, ?, ?, ?, ?)`, RawSongsTable),
		songID, title, artistID, artistName, year, duration,
	)
	require.NoError(t, err)
}

func insertPlay(t *testing.T, conn duck.Connection, page, song, artist, userID, level string, ts int64, sessionID int64) {
	t.Helper()

	_, err := conn.ExecContext(context.Background(),
		fmt.Sprintf(`INSERT INTO %s (page, song, artist, userId, level, ts, sessionId, firstName, lastName, gender, location, userAgent)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'Jo', 'Doe', 'F', 'X', 'Y')`, RawLogsTable),
		page, song, artist, userID, level, ts, sessionID,
	)
	require.NoError(t, err)
}

func countRows(t *testing.T, conn duck.Connection, table string) int64 {
	t.Helper()

	var count int64
	err := conn.QueryRowContext(context.Background(), fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&count)
	require.NoError(t, err)
	return count
}

// Fixture records shared across reader and pipeline tests. The timestamp is
// 2018-11-02T01:25:34.796Z.
const (
	tsNov2018 = int64(1541121934796)

	songS1 = `{"artist_id":"A1","artist_latitude":"34.05","artist_longitude":"-118.24","artist_location":"LA","artist_name":"Artist","song_id":"S1","title":"Test","duration":200.0,"year":2000}`
	songS2 = `{"artist_id":"A2","artist_name":"Other Artist","song_id":"S2","title":"Another","duration":145.5,"year":1999}`

	playMatched   = `{"artist":"Artist","auth":"Logged In","firstName":"Jo","gender":"F","itemInSession":0,"lastName":"Doe","length":200.0,"level":"free","location":"X","method":"PUT","page":"NextSong","registration":1540919166796.0,"sessionId":1,"song":"Test","status":200,"ts":1541121934796,"userAgent":"Y","userId":"U1"}`
	playUnmatched = `{"artist":"Nobody","auth":"Logged In","firstName":"Al","gender":"M","itemInSession":1,"lastName":"Poe","length":99.0,"level":"paid","location":"Z","method":"PUT","page":"NextSong","registration":1540919166796.0,"sessionId":2,"song":"Unknown","status":200,"ts":1541121935000,"userAgent":"Y","userId":"U2"}`
	eventHome     = `{"artist":"Artist","auth":"Logged In","firstName":"Vi","gender":"F","itemInSession":2,"lastName":"Lee","length":0.0,"level":"free","location":"W","method":"GET","page":"Home","registration":1540919166796.0,"sessionId":3,"song":"Test","status":200,"ts":1541121936000,"userAgent":"Y","userId":"U3"}`
)
