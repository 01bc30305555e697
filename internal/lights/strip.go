package lights

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"libdb.so/lightshow/internal/led"
	"libdb.so/lightshow/internal/sched"
)

// Renderer is anything that can draw itself into a strip's LED buffer.
type Renderer interface {
	Render()
}

// Strip owns a physical LED buffer. Views render into it, and KeepCurrent
// pushes it out to the hardware no more often than a given interval.
type Strip struct {
	buf    led.Buffer
	logger *slog.Logger

	pending  []Renderer
	lastSync time.Time
	syncs    int
}

// NewStrip creates a new strip over the given buffer.
func NewStrip(buf led.Buffer, logger *slog.Logger) *Strip {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strip{
		buf:    buf,
		logger: logger,
	}
}

// Len returns the number of LEDs in the strip.
func (s *Strip) Len() int { return s.buf.Len() }

// Buffer returns the underlying LED buffer.
func (s *Strip) Buffer() led.Buffer { return s.buf }

// Invalidate queues r to be rendered before the next sync. Queuing the same
// renderer twice before a sync renders it once.
func (s *Strip) Invalidate(r Renderer) {
	for _, p := range s.pending {
		if p == r {
			return
		}
	}
	s.pending = append(s.pending, r)
}

// Dirty reports whether anything is waiting to be synced.
func (s *Strip) Dirty() bool { return len(s.pending) > 0 }

// LastSync returns the time of the last sync done by KeepCurrent.
func (s *Strip) LastSync() time.Time { return s.lastSync }

// Syncs returns the number of syncs done so far.
func (s *Strip) Syncs() int { return s.syncs }

// Flush renders every queued renderer, in queue order, and syncs the buffer.
func (s *Strip) Flush() error {
	for i, r := range s.pending {
		r.Render()
		s.pending[i] = nil
	}
	s.pending = s.pending[:0]

	if err := s.buf.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync LEDs")
	}

	s.syncs++
	return nil
}

// KeepCurrent runs forever, waking at least every interval to flush the
// strip if anything invalidated it.
func (s *Strip) KeepCurrent(t *sched.Task, interval time.Duration) error {
	var lastCheck time.Time
	for {
		if wait := lastCheck.Add(interval).Sub(t.Now()); wait > 0 {
			if err := t.Sleep(wait); err != nil {
				return err
			}
		} else if err := t.Yield(); err != nil {
			return err
		}

		lastCheck = t.Now()
		if !s.Dirty() {
			continue
		}

		if err := s.Flush(); err != nil {
			return err
		}

		s.lastSync = t.Now()
		s.logger.Debug("synced LEDs", "syncs", s.syncs)
	}
}
