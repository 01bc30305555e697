// Package ringramp simulates balls rolling on a circular track under
// gravity and draws them, blurred over neighbouring pixels, on a view that
// covers part of the circle.
package ringramp

import (
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"libdb.so/lightshow/internal/lights"
	"libdb.so/lightshow/internal/sched"
)

// DefaultGravity is used when Options.G is zero. Negative gravity pulls balls
// toward the bottom of the ring.
const DefaultGravity = -1.0

// ErrTooManyBalls is returned by Integrate when the replacement balls would
// exceed the ramp's MaxBalls.
var ErrTooManyBalls = errors.New("too many balls on ramp")

// CheckFunc decides what becomes of a ball after a step. It is given the
// ball's angle and velocity from before the step and returns the balls that
// replace it: itself to keep it, nothing to remove it, or new balls.
type CheckFunc func(b *Ball, theta, omega float64) []*Ball

// KeepBall is the CheckFunc that keeps every ball.
func KeepBall(b *Ball, _, _ float64) []*Ball { return []*Ball{b} }

// Options configures a RingRamp.
type Options struct {
	// Circumference is the number of pixels around the whole ring. Zero means
	// the length of the view.
	Circumference int
	// Bottom is the LED index of the bottom of the ring.
	Bottom int
	// G is the gravitational acceleration in pixels per second squared.
	G float64
	// Blur is the Gaussian blur width in pixels.
	Blur float64
	// Check is applied to every ball after every step. Nil keeps every ball.
	Check CheckFunc
	// MaxBalls caps the number of balls. Zero means no cap.
	MaxBalls int
}

// RingRamp is a view whose LEDs lie on an arc of a ring of Circumference
// pixels, with balls rolling around the ring.
type RingRamp struct {
	*lights.Lights
	opts   Options
	radius float64
	logger *slog.Logger

	balls  []*Ball
	undraw [][]Contribution
}

var _ lights.Renderer = (*RingRamp)(nil)

// New creates a ring ramp over the given view.
func New(l *lights.Lights, opts Options, logger *slog.Logger) *RingRamp {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Circumference <= 0 {
		opts.Circumference = l.Len()
	}
	if opts.G == 0 {
		opts.G = DefaultGravity
	}
	if opts.Check == nil {
		opts.Check = KeepBall
	}
	return &RingRamp{
		Lights: l,
		opts:   opts,
		radius: float64(opts.Circumference) / (2 * math.Pi),
		logger: logger,
	}
}

// Slice returns a ramp over cells [start, stop) of r with the same ring
// geometry and no balls.
func (r *RingRamp) Slice(start, stop int) *RingRamp {
	return New(r.Lights.Slice(start, stop), r.opts, r.logger)
}

// Options returns the ramp's options with defaults filled in.
func (r *RingRamp) Options() Options { return r.opts }

// SetCheck replaces the ball check.
func (r *RingRamp) SetCheck(check CheckFunc) {
	if check == nil {
		check = KeepBall
	}
	r.opts.Check = check
}

// Balls returns the balls currently on the ramp.
func (r *RingRamp) Balls() []*Ball {
	return append([]*Ball(nil), r.balls...)
}

// AddBall puts a ball on the ramp.
func (r *RingRamp) AddBall(b *Ball) error {
	if r.opts.MaxBalls > 0 && len(r.balls) >= r.opts.MaxBalls {
		return ErrTooManyBalls
	}
	r.balls = append(r.balls, b)
	return nil
}

// PixelOf returns the pixel coordinate of angle theta, relative to the
// bottom of the ring.
func (r *RingRamp) PixelOf(theta float64) float64 {
	return theta * r.radius
}

// LEDOf returns the view index showing the given pixel, and false if that
// part of the ring has no LED.
func (r *RingRamp) LEDOf(pixel int) (int, bool) {
	c := r.opts.Circumference
	k := ((pixel+r.opts.Bottom)%c + c) % c
	return k, k < r.Len()
}

// Integrate advances every ball by dt seconds and applies the check to each.
// If the resulting balls would exceed MaxBalls, the ball list is left as it
// was and ErrTooManyBalls is returned. The balls have still moved.
func (r *RingRamp) Integrate(dt float64) error {
	next := make([]*Ball, 0, len(r.balls))
	seen := make(map[*Ball]bool, len(r.balls))

	for _, b := range r.balls {
		theta, omega := b.theta, b.Omega
		b.Integrate(dt, r.opts.G*math.Sin(theta)/r.radius)

		for _, nb := range r.opts.Check(b, theta, omega) {
			if nb == nil || seen[nb] {
				continue
			}
			seen[nb] = true
			next = append(next, nb)
		}
	}

	if r.opts.MaxBalls > 0 && len(next) > r.opts.MaxBalls {
		return errors.Wrapf(ErrTooManyBalls, "%d balls, max %d", len(next), r.opts.MaxBalls)
	}

	for _, b := range r.balls {
		if !seen[b] && b.shown != nil {
			r.undraw = append(r.undraw, b.shown)
			b.shown = nil
		}
	}

	r.balls = next
	return nil
}

// ShowBalls erases what each ball last drew, draws it where it is now, and
// invalidates the ramp. Balls removed since the last call are erased.
func (r *RingRamp) ShowBalls() {
	for _, u := range r.undraw {
		r.apply(u, r.SubColorFrom)
	}
	r.undraw = r.undraw[:0]

	for _, b := range r.balls {
		shown := DisplayList(r.PixelOf(b.theta), b.color, r.opts.Blur)
		r.apply(b.shown, r.SubColorFrom)
		r.apply(shown, r.AddColorTo)
		b.shown = shown
	}

	r.Invalidate()
}

func (r *RingRamp) apply(list []Contribution, op func(int, lights.Color)) {
	for _, c := range list {
		if k, ok := r.LEDOf(c.Pixel); ok {
			op(k, c.Color)
		}
	}
}

// Invalidate queues the ramp to be rendered at the strip's next sync.
func (r *RingRamp) Invalidate() {
	r.Strip().Invalidate(r)
}

// IntegrateContinuously integrates and shows the balls forever, napping
// between steps. Each step covers the time measured since the last one. A
// step that would exceed MaxBalls is skipped.
func (r *RingRamp) IntegrateContinuously(t *sched.Task, nap time.Duration) error {
	then := t.Now()
	for {
		now := t.Now()
		dt := float64(now.Sub(then).Microseconds()) / 1e6
		then = now

		if err := r.Integrate(dt); err != nil {
			if !errors.Is(err, ErrTooManyBalls) {
				return err
			}
			r.logger.Warn("skipped ramp step", "err", err)
		}
		r.ShowBalls()

		if err := t.Sleep(nap); err != nil {
			return err
		}
	}
}
