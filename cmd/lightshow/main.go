package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"libdb.so/lightshow"
	"libdb.so/lightshow/internal/led"
)

var (
	config  = "lightshow.toml"
	verbose = false
	play    = false
	record  = ""
	replay  = ""
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.BoolVar(&play, "play", play, "keep dropping random droplets into the grid")
	pflag.StringVar(&record, "record", record, "record every frame to this file")
	pflag.StringVar(&replay, "replay", replay, "print the frames of a recording instead of running the show")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	if play {
		cfg.Play = true
	}
	if record != "" {
		cfg.Record = record
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if replay != "" {
		return replayFile(ctx, cfg)
	}

	d, err := lightshow.NewDaemon(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon failed: %w", err)
	}

	return nil
}

func readConfig() (*lightshow.Config, error) {
	f, err := os.Open(config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !pflag.CommandLine.Changed("config") {
			slog.Info("no config file, using defaults", "path", config)
			return lightshow.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return lightshow.ParseConfig(f)
}

// replayFile plays a recording back onto a printing buffer.
func replayFile(ctx context.Context, cfg *lightshow.Config) error {
	f, err := os.Open(replay)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	buf := &printer{led.NewMemory(cfg.NumLEDs())}
	if err := lightshow.PlayRecording(ctx, f, buf); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay failed: %w", err)
	}
	return nil
}

type printer struct {
	*led.Memory
}

func (p *printer) Sync() error {
	if err := p.Memory.Sync(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(os.Stdout, p.Synced)
	return err
}
