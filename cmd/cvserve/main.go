// Command cvserve is the codeviz backend: it computes the code metrics
// matrix and serves it to cv.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vanderheijden86/codeviz/internal/analyzer"
	"github.com/vanderheijden86/codeviz/internal/server"
	"github.com/vanderheijden86/codeviz/internal/store"
	"github.com/vanderheijden86/codeviz/pkg/config"
	"github.com/vanderheijden86/codeviz/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "Config file (default ~/.config/codeviz/config.yaml)")
	addr := flag.String("addr", "", "Listen address (overrides config and CV_SERVER_ADDR)")
	source := flag.String("source", "", "Matrix source: analyzer or dir")
	root := flag.String("root", "", "Source tree to analyze (analyzer source)")
	dataDir := flag.String("data", "", "Directory of <category>/<ext>.json documents (dir source)")
	dbPath := flag.String("db", "", "SQLite file for the last computed matrix (default ~/.local/state/codeviz/matrix.db)")
	noStore := flag.Bool("no-store", false, "Do not persist or restore the matrix")
	exclude := flag.String("exclude", "", "Comma-separated extra directories to skip")
	versionFlag := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("cvserve %s\n", version.Version)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if cfg, err = cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	applyFlag(&cfg.Server.Addr, *addr)
	applyFlag(&cfg.Server.Source, *source)
	applyFlag(&cfg.Server.SourceRoot, *root)
	applyFlag(&cfg.Server.DataDir, *dataDir)
	applyFlag(&cfg.Server.DBPath, *dbPath)
	if *noStore {
		cfg.Server.DBPath = ""
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, closeLog := newLogger(cfg.Server)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Server, splitCSV(*exclude), logger); err != nil {
		logger.Error("cvserve failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, sc config.ServerConfig, excludes []string, logger *slog.Logger) error {
	opts := server.Options{
		CORSOrigins: sc.CORSOrigins,
		Logger:      logger,
		Debounce:    sc.Debounce,
	}
	switch sc.Source {
	case config.SourceDir:
		opts.Source = server.DirSource{Dir: sc.DataDir}
		if sc.Watch {
			opts.WatchDir = sc.DataDir
		}
	default:
		a := analyzer.New(sc.SourceRoot,
			analyzer.WithExcludes(excludes...),
			analyzer.WithLogger(logger),
		)
		opts.Source = server.AnalyzerSource{A: a}
	}

	if sc.DBPath != "" {
		st, err := store.Open(sc.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	// Runs before the store is closed: no save may outlive it.
	defer srv.Close()
	if err := srv.Warm(ctx); err != nil {
		logger.Warn("ignoring stored matrix", "err", err)
	}

	// First compute runs in the background; a restored matrix is served
	// meanwhile.
	go func() {
		if _, err := srv.Recompute(ctx); err != nil && !errors.Is(err, server.ErrClosed) && ctx.Err() == nil {
			logger.Error("initial compute failed", "err", err)
		}
	}()

	if err := srv.Watch(ctx); err != nil {
		logger.Warn("auto-reload disabled", "err", err)
	}

	logger.Info("starting cvserve", "version", version.Version, "source", sc.Source, "addr", sc.Addr)
	return srv.ListenAndServe(ctx, sc.Addr)
}

// newLogger writes text logs to stdout and, when configured, a rotated
// log file.
func newLogger(sc config.ServerConfig) (*slog.Logger, func()) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if sc.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   sc.LogFile,
			MaxSize:    25, // megabytes
			MaxBackups: 10,
			MaxAge:     14, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, lj)
		closeFn = func() { lj.Close() }
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(sc.LogLevel)})
	return slog.New(handler), closeFn
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyFlag(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
