package lightshow

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/lightshow/internal/led"
	"libdb.so/lightshow/internal/sched"
	"libdb.so/lightshow/internal/spiled"
	"libdb.so/lightshow/ledserial"
)

// Daemon is the main light show daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger
	clock  sched.Clock
}

// NewDaemon creates a new light show daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
		clock:  sched.RealClock{},
	}, nil
}

// Run starts the daemon. It blocks until the given context is canceled or
// the show fails.
func (d *Daemon) Run(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)

	buf, err := d.openTransport(ctx, errg)
	if err != nil {
		return err
	}

	if d.cfg.Record != "" {
		f, err := os.Create(d.cfg.Record)
		if err != nil {
			return errors.Wrap(err, "failed to create recording")
		}
		defer f.Close()

		d.logger.Info("recording frames", "file", d.cfg.Record)
		buf = led.NewRecorder(buf, f, d.clock.Now)
	}

	seed := d.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	loop := sched.NewLoop(d.clock, d.logger.With("component", "sched"))
	grid, rings := led.Split(buf, d.cfg.GridLEDs())

	show, err := NewShow(loop, grid, rings, d.cfg, rand.New(rand.NewSource(seed)), d.logger)
	if err != nil {
		return errors.Wrap(err, "failed to set up show")
	}
	loop.Spawn("master", show.Master)

	errg.Go(func() error {
		return loop.Run(ctx)
	})

	return errg.Wait()
}

// openTransport opens the LED chain. Anything that must run alongside it,
// such as a reader, is started on errg and stops with ctx.
func (d *Daemon) openTransport(ctx context.Context, errg *errgroup.Group) (led.Buffer, error) {
	n := d.cfg.NumLEDs()

	switch d.cfg.Transport {
	case SerialTransport:
		port, err := ledserial.Open(d.cfg.Device, d.cfg.Baud, n, d.logger.With("component", "serial"))
		if err != nil {
			return nil, err
		}
		errg.Go(func() error {
			<-ctx.Done()
			d.logger.Debug("closing serial port")
			if err := port.Close(); err != nil {
				return errors.Wrap(err, "failed to close serial port")
			}
			return ctx.Err()
		})
		errg.Go(func() error {
			return port.ReadLoop(ctx)
		})
		return port, nil

	case SPITransport:
		b, err := spiled.Open(d.cfg.SPIPort, n, d.cfg.SPIFreq())
		if err != nil {
			return nil, err
		}
		errg.Go(func() error {
			<-ctx.Done()
			d.logger.Debug("turning LEDs off")
			if err := b.Close(); err != nil {
				return errors.Wrap(err, "failed to close SPI port")
			}
			return ctx.Err()
		})
		return b, nil

	default:
		return led.NewMemory(n), nil
	}
}

// PlayRecording writes every frame of a recording to buf, spaced out as they
// were recorded, until the recording ends or ctx is done.
func PlayRecording(ctx context.Context, r io.Reader, buf led.Buffer) error {
	p := led.NewPlayback(r)

	var last time.Time
	for {
		f, err := p.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "failed to read frame")
		}

		if !last.IsZero() {
			timer := time.NewTimer(f.Time.Sub(last))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		last = f.Time

		led.Draw(buf, 0, f.LEDs)
		if err := buf.Sync(); err != nil {
			return err
		}
	}
}
