package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"

	"icalsync/internal/config"
	"icalsync/internal/dav"
	"icalsync/internal/ics"
	"icalsync/internal/syncer"
)

// flagConfig holds parsed CLI flag values.
type flagConfig struct {
	configPath string
	watch      bool
	dryRun     bool
	debug      bool
	mode       string
}

func init() {
	// A .env file is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()
}

func main() {
	flags := parseFlags()
	setupLogger(flags.debug)

	slog.Info("icalsync starting",
		"version", "0.1.0", "watch", flags.watch, "dry_run", flags.dryRun)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		slog.Error("failed to load config", "config_path", flags.configPath, "error", err)
		os.Exit(1)
	}
	if err := conf.Validate(); err != nil {
		slog.Error("invalid config", "config_path", flags.configPath, "error", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	fetcher := ics.NewFetcher(conf.HTTPTimeout(), conf.CacheDir)
	client, err := dav.Connect(conf.CalDAVURL, conf.Username, conf.Password, conf.HTTPTimeout())
	if err != nil {
		slog.Error("failed to connect to CalDAV server", "error", err)
		os.Exit(1)
	}
	engine, err := syncer.New(conf, fetcher, client)
	if err != nil {
		slog.Error("failed to initialize syncer", "error", err)
		os.Exit(1)
	}
	engine.DryRun = flags.dryRun

	switch {
	case flags.mode == "delete":
		if err := runDelete(ctx, engine, os.Stdin); err != nil {
			slog.Error("delete failed", "error", err)
			os.Exit(1)
		}
	case flags.watch:
		if err := runWatch(ctx, engine, conf.Refresh); err != nil {
			slog.Error("watch mode failed", "error", err)
			os.Exit(1)
		}
	default:
		if _, err := engine.Run(ctx); err != nil {
			slog.Error("sync failed", "error", err)
			os.Exit(1)
		}
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.BoolVar(&cfg.watch, "watch", false, "Keep running and sync on the configured schedule")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Run the full pipeline but skip uploads")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	cfg.mode = strings.ToLower(flag.Arg(0))

	return cfg
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))
}

// runDelete wipes the target calendar after an interactive confirmation read
// from in. Anything other than an exact "YES" cancels without touching the
// server.
func runDelete(ctx context.Context, engine *syncer.Engine, in io.Reader) error {
	fmt.Println("WARNING: this deletes every event in the target calendar.")
	fmt.Print("Type 'YES' to confirm: ")
	if !confirmed(in) {
		fmt.Println("Delete canceled.")
		return nil
	}
	_, err := engine.DeleteAll(ctx)
	return err
}

// confirmed reads one line and reports whether it is exactly "YES".
func confirmed(r io.Reader) bool {
	line, _ := bufio.NewReader(r).ReadString('\n')
	return strings.TrimRight(line, "\r\n") == "YES"
}

// runWatch performs an immediate sync, then repeats on the configured cron
// schedule until the context is canceled. A failed run logs and waits for
// the next tick instead of exiting.
func runWatch(ctx context.Context, engine *syncer.Engine, schedule string) error {
	if _, err := engine.Run(ctx); err != nil {
		slog.Error("sync failed", "error", err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := engine.Run(ctx); err != nil {
			slog.Error("sync failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Info(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error(msg, append(keysAndValues, "error", err)...)
}
