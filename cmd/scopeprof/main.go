package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/guidoenr/scopeprof/internal/app"
	"github.com/guidoenr/scopeprof/internal/config"
	"github.com/guidoenr/scopeprof/internal/profiler"
	"github.com/guidoenr/scopeprof/internal/sink"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional TOML config file")
		logPath    = flag.String("log", "", "Profiler log file (overrides config)")
		targetFPS  = flag.Float64("fps", 0, "Target frames per second (overrides config)")
		interval   = flag.Int("interval", 0, "Dump interval in seconds (overrides config)")
		drain      = flag.Bool("drain", false, "Reset counters after every dump (windowed stats)")
		duration   = flag.Duration("duration", 0, "Exit after this long (0 = run until quit)")
		debug      = flag.Bool("debug", false, "Enable verbose logging")
	)

	flag.Parse()

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}
	if *targetFPS > 0 {
		cfg.TargetFPS = *targetFPS
	}
	if *interval > 0 {
		cfg.DumpIntervalS = *interval
	}
	if *drain {
		cfg.DrainOnDump = true
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	fileSink, err := sink.New(sink.Config{
		Path:     cfg.LogPath,
		MaxBytes: cfg.MaxLogBytes,
		Keep:     cfg.KeepRotated,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create log sink")
	}

	prof, err := profiler.New(profiler.Config{
		Capacity:      cfg.Capacity,
		TopN:          cfg.TopN,
		DumpInterval:  cfg.DumpInterval(),
		DrainOnDump:   cfg.DrainOnDump,
		ResetOnEnable: cfg.ResetOnEnable,
		Sink:          fileSink,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create profiler")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	a, err := app.New(app.Config{
		TargetFPS:     cfg.TargetFPS,
		ShowStatusBar: cfg.ShowStatusBar,
		Profiler:      prof,
		Log:           logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create app")
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	logger.Info().Str("log", fileSink.Path()).Msg("profiling to file")

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("Exiting...")
			return
		}
		logger.Fatal().Err(err).Msg("runtime error")
	}
}
