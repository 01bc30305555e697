package lights

import (
	"math"
	"time"

	"libdb.so/lightshow/internal/sched"
)

// Gear is a view with a phase, in teeth (cells). Rotating a gear moves no
// colors; it only changes which cell is rendered first.
type Gear struct {
	*Lights
	Phase float64
}

var _ Renderer = (*Gear)(nil)

// NewGear creates a gear over a copy of the given view.
func NewGear(l *Lights) *Gear {
	v := *l
	return &Gear{Lights: &v}
}

// Slice returns a gear over cells [start, stop) of g with a zero phase.
func (g *Gear) Slice(start, stop int) *Gear {
	return &Gear{Lights: g.Lights.Slice(start, stop)}
}

// Clockwise advances the phase by n teeth.
func (g *Gear) Clockwise(n float64) {
	g.Phase = g.wrap(g.Phase + n)
}

// CounterClockwise moves the phase back by n teeth.
func (g *Gear) CounterClockwise(n float64) {
	g.Phase = g.wrap(g.Phase - n)
}

func (g *Gear) wrap(p float64) float64 {
	n := float64(g.Len())
	if n == 0 {
		return 0
	}
	p = math.Mod(p, n)
	if p < 0 {
		p += n
	}
	return p
}

// Render renders the gear's cells starting from the one at its phase.
func (g *Gear) Render() {
	n := g.Len()
	if n == 0 {
		return
	}
	start := int(math.Round(g.Phase)) % n
	g.renderFrom(func(k int) Color { return *g.Get((k + start) % n) })
}

// Invalidate queues the gear to be rendered at the strip's next sync.
func (g *Gear) Invalidate() {
	g.strip.Invalidate(g)
}

// Spin rotates the gear by teeth every period, forever. Negative teeth spin
// it counter-clockwise.
func (g *Gear) Spin(t *sched.Task, teeth float64, period time.Duration) error {
	for {
		g.Clockwise(teeth)
		g.Invalidate()
		if err := t.Sleep(period); err != nil {
			return err
		}
	}
}

// Jewel7 is a seven-LED jewel: a center LED ringed by a six-tooth gear.
type Jewel7 struct {
	*Lights
	Gear *Gear
}

var _ Renderer = (*Jewel7)(nil)

// NewJewel7 creates a jewel over the given view, whose first cell is the
// center.
func NewJewel7(l *Lights) *Jewel7 {
	return &Jewel7{
		Lights: l,
		Gear:   NewGear(l.Slice(1, Open)),
	}
}

// Center returns the center cell.
func (j *Jewel7) Center() *Color { return j.Get(0) }

// SetBrightness sets the render scale of the center and the gear.
func (j *Jewel7) SetBrightness(v float64) {
	j.Lights.SetBrightness(v)
	j.Gear.SetBrightness(v)
}

// Render renders the center and then the gear.
func (j *Jewel7) Render() {
	if j.Len() == 0 {
		return
	}
	center := *j.Center()
	j.Slice(0, 1).renderFrom(func(int) Color { return center })
	j.Gear.Render()
}

// Invalidate queues the jewel to be rendered at the strip's next sync.
func (j *Jewel7) Invalidate() {
	j.strip.Invalidate(j)
}

// RollerColors paints a pair of feed rollers.
type RollerColors struct {
	// Lower and Upper are the colors of the leading tooth of each roller.
	Lower, Upper Color
	// Center is the color of both center LEDs.
	Center Color
	// Decay scales each tooth after the leading one.
	Decay float64
}

// PaintRollers colors the teeth of two jewels with decaying trails. The
// upper trail runs the other way round, starting three teeth on.
func PaintRollers(lower, upper *Jewel7, c RollerColors) {
	lower.SetColorOf(0, c.Center)
	upper.SetColorOf(0, c.Center)

	n := lower.Gear.Len()
	v := 1.0
	for i := 0; i < n; i++ {
		lower.Gear.SetColorOf(i, c.Lower.Scale(v))
		if m := upper.Gear.Len(); m > 0 {
			upper.Gear.SetColorOf(((3-i)%m+m)%m, c.Upper.Scale(v))
		}
		v *= c.Decay
	}
}

// FeedRollers paints two jewels as feed rollers and turns them forever, one
// tooth every period: the lower one clockwise and the upper one
// counter-clockwise.
func FeedRollers(t *sched.Task, lower, upper *Jewel7, c RollerColors, period time.Duration) error {
	PaintRollers(lower, upper, c)
	for {
		lower.Gear.Clockwise(1)
		upper.Gear.CounterClockwise(1)
		lower.Invalidate()
		upper.Invalidate()
		if err := t.Sleep(period); err != nil {
			return err
		}
	}
}
