package duck

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testDBWithConn creates an in-memory database and connection for testing
func testDBWithConn(t *testing.T) (DB, Connection, error) {
	ctx := context.Background()

	db, err := NewDB(ctx, testLogger(), nil)
	if err != nil {
		return nil, nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return db, conn, nil
}
