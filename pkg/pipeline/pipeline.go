package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/playbacklabs/songlake/pkg/duck"
	"github.com/playbacklabs/songlake/pkg/metrics"
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	DB     duck.DB

	// SongData and LogData are glob locations of the raw NDJSON sources;
	// Output is the root the five table subdirectories are written under.
	SongData string
	LogData  string
	Output   string

	// JoinMode controls fact construction; defaults to JoinModeInner.
	JoinMode JoinMode
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if err := duck.ValidateDataURI(cfg.SongData); err != nil {
		return fmt.Errorf("song data: %w", err)
	}
	if err := duck.ValidateDataURI(cfg.LogData); err != nil {
		return fmt.Errorf("log data: %w", err)
	}
	if err := duck.ValidateDataURI(cfg.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.JoinMode == "" {
		cfg.JoinMode = JoinModeInner
	}
	return cfg.JoinMode.Validate()
}

// Pipeline recomputes the full star schema from the raw sources on every run
// and overwrites the output root. Stages run strictly in sequence; the first
// error aborts the run with no rollback of tables already written.
type Pipeline struct {
	log *slog.Logger
	cfg Config
	db  duck.DB
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log: cfg.Logger,
		cfg: cfg,
		db:  cfg.DB,
	}, nil
}

func (p *Pipeline) Run(ctx context.Context) error {
	start := p.cfg.Clock.Now()
	p.log.Info("pipeline run started", "song_data", p.cfg.SongData, "log_data", p.cfg.LogData, "output", p.cfg.Output, "join_mode", string(p.cfg.JoinMode))

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	songRows, err := ReadSongs(ctx, p.log, conn, p.cfg.SongData)
	if err != nil {
		return err
	}
	metrics.RowsRead.WithLabelValues(RecordSong).Add(float64(songRows))

	logRows, err := ReadLogs(ctx, p.log, conn, p.cfg.LogData)
	if err != nil {
		return err
	}
	metrics.RowsRead.WithLabelValues(RecordLog).Add(float64(logRows))

	if err := p.processSongData(ctx, conn); err != nil {
		return err
	}
	if err := p.processLogData(ctx, conn); err != nil {
		return err
	}

	p.log.Info("pipeline run completed", "duration", p.cfg.Clock.Since(start).String())
	return nil
}

// processSongData builds and persists the songs and artists dimensions.
func (p *Pipeline) processSongData(ctx context.Context, conn duck.Connection) error {
	if _, err := BuildSongs(ctx, p.log, conn); err != nil {
		return err
	}
	if _, err := BuildArtists(ctx, p.log, conn); err != nil {
		return err
	}
	return p.writeTables(ctx, conn, SongsTable, ArtistsTable)
}

// processLogData builds and persists users, time and the songplays fact.
func (p *Pipeline) processLogData(ctx context.Context, conn duck.Connection) error {
	if _, err := BuildUsers(ctx, p.log, conn); err != nil {
		return err
	}
	if _, err := BuildTime(ctx, p.log, conn); err != nil {
		return err
	}
	if _, err := BuildSongplays(ctx, p.log, conn, p.cfg.JoinMode); err != nil {
		return err
	}
	return p.writeTables(ctx, conn, UsersTable, TimeTable, SongplaysTable)
}

func (p *Pipeline) writeTables(ctx context.Context, conn duck.Connection, tables ...string) error {
	for _, spec := range WriteSpecs() {
		wanted := false
		for _, t := range tables {
			if spec.Table == t {
				wanted = true
				break
			}
		}
		if !wanted {
			continue
		}
		if err := WriteTable(ctx, p.log, conn, spec, p.cfg.Output); err != nil {
			return err
		}
		var count int64
		if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", spec.Table)).Scan(&count); err != nil {
			// The write itself succeeded; only the rows-written metric is lost.
			p.log.Debug("failed to count written rows", "table", spec.Table, "error", err)
		} else {
			metrics.RowsWritten.WithLabelValues(spec.Subdir).Add(float64(count))
		}
	}
	return nil
}
