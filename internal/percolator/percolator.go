// Package percolator drops colored droplets through a square grid of lights.
// A droplet enters at the top corner and steps diagonally down, one row or
// column at a time, until it falls out of the bottom corner. Cells on the
// midline react with the droplet: they absorb color up to a threshold and
// pass any excess on.
package percolator

import (
	"log/slog"
	"math/rand"
	"time"

	"libdb.so/lightshow/internal/lights"
	"libdb.so/lightshow/internal/sched"
)

// Options configures a Percolator.
type Options struct {
	// Width is the side of the grid. Zero means 8.
	Width int
	// Threshold is the per-channel stoichiometric amount held by a fully
	// reacted midline cell.
	Threshold lights.Color
	// MidDwell multiplies a droplet's delay while it sits on the midline.
	// Zero means 14.
	MidDwell int
	// BingoDelay is the pause between releases in a bingo. Zero means 200ms.
	BingoDelay time.Duration
	// ReleaseDelay is the droplet delay used for colors released by a bingo.
	// Zero means 100ms.
	ReleaseDelay time.Duration
}

// ReleaseFunc is called, on the droplet's task, with each color that falls
// out of the bottom of the grid.
type ReleaseFunc func(t *sched.Task, c lights.Color)

// Percolator is a square grid view with droplets falling through it.
type Percolator struct {
	*lights.Lights
	opts   Options
	rand   *rand.Rand
	logger *slog.Logger

	// OnRelease receives colors that leave the grid. It may be nil.
	OnRelease ReleaseFunc

	quit    int
	playing bool
}

// New creates a percolator over the given view, which must hold Width*Width
// cells. The random source decides droplet paths and play colors.
func New(l *lights.Lights, opts Options, rng *rand.Rand, logger *slog.Logger) *Percolator {
	if opts.Width <= 0 {
		opts.Width = 8
	}
	if opts.MidDwell <= 0 {
		opts.MidDwell = 14
	}
	if opts.BingoDelay <= 0 {
		opts.BingoDelay = 200 * time.Millisecond
	}
	if opts.ReleaseDelay <= 0 {
		opts.ReleaseDelay = 100 * time.Millisecond
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Percolator{
		Lights: l,
		opts:   opts,
		rand:   rng,
		logger: logger,
	}
}

// Width returns the side of the grid.
func (p *Percolator) Width() int { return p.opts.Width }

// Threshold returns the stoichiometric threshold.
func (p *Percolator) Threshold() lights.Color { return p.opts.Threshold }

// Top returns the cell droplets enter at by default.
func (p *Percolator) Top() int { return p.Len() - 1 }

// DownLeft returns the cell one row below i, and false on the bottom row.
func (p *Percolator) DownLeft(i int) (int, bool) {
	if i/p.opts.Width == 0 {
		return 0, false
	}
	return i - p.opts.Width, true
}

// DownRight returns the cell one column right of i, and false in the last
// column.
func (p *Percolator) DownRight(i int) (int, bool) {
	if i%p.opts.Width == 0 {
		return 0, false
	}
	return i - 1, true
}

// Down returns the cell below i in the preferred direction, falling back to
// the other one. It returns false only from cell 0, the bottom corner.
func (p *Percolator) Down(i int, preferRight bool) (int, bool) {
	steer := func(right bool) (int, bool) {
		if right {
			return p.DownRight(i)
		}
		return p.DownLeft(i)
	}
	if j, ok := steer(preferRight); ok {
		return j, true
	}
	return steer(!preferRight)
}

// AtMid reports whether cell i is on the reacting midline.
func (p *Percolator) AtMid(i int) bool {
	return i/p.opts.Width+i%p.opts.Width == p.opts.Width-1
}

// Markers returns the midline cells whose contents decide a win.
func (p *Percolator) Markers() []int {
	step := p.opts.Width - 1
	if step <= 0 {
		return nil
	}
	var markers []int
	for i := step; i < p.Len()-1; i += step {
		markers = append(markers, i)
	}
	return markers
}

// SeedMarkers fills every marker cell with exactly the threshold.
func (p *Percolator) SeedMarkers() {
	for _, i := range p.Markers() {
		p.SetColorOf(i, p.opts.Threshold)
	}
}

// Won reports whether every marker cell holds exactly the threshold.
func (p *Percolator) Won() bool {
	markers := p.Markers()
	if len(markers) == 0 {
		return false
	}
	for _, i := range markers {
		if *p.Get(i) != p.opts.Threshold {
			return false
		}
	}
	return true
}

// Reaction is the outcome of React.
type Reaction int

const (
	// Absorbed means the cell took all of the color and is still short of
	// the threshold in some channel.
	Absorbed Reaction = iota
	// Saturated means the cell now holds exactly the threshold.
	Saturated
	// Overflowed means the cell went past the threshold in some channel; it
	// is cut back to the threshold there and the excess moves on.
	Overflowed
)

func (r Reaction) String() string {
	switch r {
	case Absorbed:
		return "absorbed"
	case Saturated:
		return "saturated"
	case Overflowed:
		return "overflowed"
	default:
		return "unknown"
	}
}

// React compares cell i against the threshold. On overflow, the excess is
// taken out of the cell and returned.
func (p *Percolator) React(i int) (lights.Color, Reaction) {
	cell := p.Get(i)
	thr := p.opts.Threshold

	var excess lights.Color
	for k := range cell {
		if d := cell[k] - thr[k]; d > 0 {
			excess[k] = d
		}
	}

	switch {
	case !excess.IsZero():
		*cell = cell.Sub(excess)
		return excess, Overflowed
	case *cell == thr:
		return lights.Color{}, Saturated
	default:
		return lights.Color{}, Absorbed
	}
}

// Quit asks one falling droplet to stop after its current step.
func (p *Percolator) Quit() { p.quit++ }

// Droplet drops color from cell start, pausing delay on each cell. It
// returns the color that fell out of the bottom of the grid, or false if the
// color was absorbed or the droplet was told to quit.
func (p *Percolator) Droplet(t *sched.Task, delay time.Duration, color lights.Color, start int) (lights.Color, bool, error) {
	i := start
	for {
		p.AddColorTo(i, color)

		dwell := delay
		if p.AtMid(i) {
			dwell *= time.Duration(p.opts.MidDwell)
		}
		if err := p.ShowFor(t, dwell); err != nil {
			return lights.Color{}, false, err
		}

		placed := true
		if p.AtMid(i) {
			excess, reaction := p.React(i)
			p.logger.Debug("droplet reacted", "cell", i, "reaction", reaction, "excess", excess)

			switch reaction {
			case Saturated:
				if p.Won() {
					p.logger.Info("bingo")
					t.Spawn("bingo", p.Bingo)
				}
				p.Invalidate()
				return lights.Color{}, false, nil
			case Absorbed:
				p.Invalidate()
				return lights.Color{}, false, t.Yield()
			}

			// The cell was cut back by the excess, which is all that is
			// left of the droplet.
			color = excess
			placed = false
		}

		next, ok := p.Down(i, p.rand.Intn(2) == 1)
		if placed {
			p.SubColorFrom(i, color)
		}

		if p.quit > 0 {
			p.quit--
			p.Invalidate()
			return lights.Color{}, false, nil
		}

		if !ok {
			p.Invalidate()
			return color, !color.IsZero(), nil
		}
		i = next
	}
}

// Launch starts a droplet on its own task. Whatever falls out of the bottom
// goes to OnRelease. Black droplets are not launched.
func (p *Percolator) Launch(s sched.Spawner, delay time.Duration, color lights.Color, start int) *sched.Task {
	if color.IsZero() {
		return nil
	}
	return s.Spawn("droplet", func(t *sched.Task) error {
		out, ok, err := p.Droplet(t, delay, color, start)
		if err != nil || !ok {
			return err
		}
		if p.OnRelease != nil {
			p.OnRelease(t, out)
		}
		return nil
	})
}

// Bingo empties the marker cells one by one, in random order, and drops the
// color each held from the cell below it.
func (p *Percolator) Bingo(t *sched.Task) error {
	markers := p.Markers()
	p.rand.Shuffle(len(markers), func(i, j int) {
		markers[i], markers[j] = markers[j], markers[i]
	})

	for _, i := range markers {
		if err := t.Sleep(p.opts.BingoDelay); err != nil {
			return err
		}

		color := *p.Get(i)
		p.SetColorOf(i, lights.Color{})
		p.Invalidate()

		if start, ok := p.Down(i, p.rand.Intn(2) == 1); ok {
			p.Launch(t, p.opts.ReleaseDelay, color, start)
		}
	}
	return nil
}

// Play launches droplets of random single primary colors at random
// intervals until Stop is called.
func (p *Percolator) Play(t *sched.Task) error {
	p.playing = true
	for p.playing {
		delay := time.Duration(50+p.rand.Intn(150)) * time.Millisecond

		var color lights.Color
		ch := p.rand.Intn(len(color))
		color[ch] = p.opts.Threshold[ch]
		if color.IsZero() {
			color[ch] = 1
		}

		p.Launch(t, delay, color, p.Top())

		gap := time.Duration(200+p.rand.Intn(1800)) * time.Millisecond
		if err := t.Sleep(gap); err != nil {
			return err
		}
	}
	return nil
}

// Stop ends Play after its current gap.
func (p *Percolator) Stop() { p.playing = false }
