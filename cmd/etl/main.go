package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/playbacklabs/songlake/pkg/duck"
	"github.com/playbacklabs/songlake/pkg/metrics"
	"github.com/playbacklabs/songlake/pkg/pipeline"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultSongData = "data/song_data/*/*/*/*.json"
	defaultLogData  = "data/log_data/*/*/*.json"
	defaultOutput   = "data/out"
	defaultJoinMode = string(pipeline.JoinModeInner)
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local credentials may live in a .env file next to the binary.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s3cfg, err := duck.PrepareS3Config(ctx, log, cfg.SongData, cfg.LogData, cfg.Output)
	if err != nil {
		return err
	}
	if duck.IsS3URI(cfg.Output) {
		if err := duck.EnsureBucket(ctx, log, cfg.Output, s3cfg); err != nil {
			return fmt.Errorf("failed to ensure output bucket exists: %w", err)
		}
	}

	db, err := duck.NewDB(ctx, log, s3cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine session: %w", err)
	}
	defer db.Close()

	p, err := pipeline.New(pipeline.Config{
		Logger:   log,
		DB:       db,
		SongData: cfg.SongData,
		LogData:  cfg.LogData,
		Output:   cfg.Output,
		JoinMode: pipeline.JoinMode(cfg.JoinMode),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	return p.Run(ctx)
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	MetricsAddr string

	SongData string
	LogData  string
	Output   string
	JoinMode string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (Config, error) {
	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", ""), "address to listen on for prometheus metrics, empty to disable (env: METRICS_ADDR)")

	flag.StringVar(&cfg.SongData, "song-data", getenv("SONG_DATA", defaultSongData), "song metadata source location, file:// or s3://, glob allowed (env: SONG_DATA)")
	flag.StringVar(&cfg.LogData, "log-data", getenv("LOG_DATA", defaultLogData), "usage log source location, file:// or s3://, glob allowed (env: LOG_DATA)")
	flag.StringVar(&cfg.Output, "output", getenv("OUTPUT", defaultOutput), "output root location for the star schema tables (env: OUTPUT)")
	flag.StringVar(&cfg.JoinMode, "join-mode", getenv("JOIN_MODE", defaultJoinMode), "songplays join mode: inner drops unmatched plays, left keeps them with null song/artist ids (env: JOIN_MODE)")

	flag.Parse()

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
