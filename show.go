package lightshow

import (
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"libdb.so/lightshow/internal/led"
	"libdb.so/lightshow/internal/lights"
	"libdb.so/lightshow/internal/percolator"
	"libdb.so/lightshow/internal/ringramp"
	"libdb.so/lightshow/internal/sched"
)

const (
	// topOfC is the angle at which a ball leaves the top of the ramp.
	topOfC = -2.408554
	// entryTheta is where a ball released by the grid joins the ramp.
	entryTheta = 2 * math.Pi * -7 / 60
	// entryOmega is the speed a released ball joins the ramp with.
	entryOmega = 0.3
	// groundTheta is where ground-up balls leave the rollers.
	groundTheta = 0.1
)

// Show is the whole light show: a percolator grid that drops colors onto a
// ring ramp, where the balls roll through a pair of feed rollers that grind
// them back into primaries and over the top of the ramp back into the grid.
type Show struct {
	cfg    *Config
	logger *slog.Logger
	loop   sched.Spawner
	rand   *rand.Rand

	Grid  *lights.Strip
	Rings *lights.Strip

	Percolator *percolator.Percolator
	Rollers    []*lights.Jewel7
	Ramp       *ringramp.RingRamp
}

// NewShow lays the show out over the grid and ring buffers. New tasks started
// by the show are spawned on loop.
func NewShow(loop sched.Spawner, grid, rings led.Buffer, cfg *Config, rng *rand.Rand, logger *slog.Logger) (*Show, error) {
	if grid.Len() < cfg.GridLEDs() {
		return nil, errors.Errorf("grid has %d LEDs, need %d", grid.Len(), cfg.GridLEDs())
	}
	if rings.Len() < cfg.RingLEDs() {
		return nil, errors.Errorf("rings have %d LEDs, need %d", rings.Len(), cfg.RingLEDs())
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Show{
		cfg:    cfg,
		logger: logger,
		loop:   loop,
		rand:   rng,
		Grid:   lights.NewStrip(grid, logger.With("strip", "grid")),
		Rings:  lights.NewStrip(rings, logger.With("strip", "rings")),
	}

	gridLights := lights.New(s.Grid).Slice(0, cfg.GridLEDs())
	s.Percolator = percolator.New(gridLights, percolator.Options{
		Width:     cfg.Grid.Width,
		Threshold: cfg.Threshold(),
		MidDwell:  cfg.Grid.MidDwell,
	}, rng, logger.With("component", "percolator"))
	s.Percolator.OnRelease = s.roll

	ringLights := lights.New(s.Rings)
	size := cfg.Rings.RollerSize
	for i := 0; i < cfg.Rings.Rollers; i++ {
		s.Rollers = append(s.Rollers, lights.NewJewel7(ringLights.Slice(i*size, (i+1)*size)))
	}

	rampStart := cfg.Rings.Rollers * size
	s.Ramp = ringramp.New(ringLights.Slice(rampStart, rampStart+cfg.Rings.RampLEDs), ringramp.Options{
		Circumference: cfg.Rings.Circumference,
		Bottom:        cfg.Rings.Bottom,
		G:             cfg.Rings.Gravity,
		Blur:          cfg.Rings.Blur,
		Check:         s.CheckBall,
		MaxBalls:      cfg.Rings.MaxBalls,
	}, logger.With("component", "ramp"))

	s.SetBrightness(cfg.Brightness)
	return s, nil
}

// SetBrightness sets the brightness of every part of the show.
func (s *Show) SetBrightness(v float64) {
	s.Percolator.SetBrightness(v)
	s.Ramp.SetBrightness(v)
	for _, r := range s.Rollers {
		r.SetBrightness(v)
	}
	s.Percolator.Invalidate()
	s.Ramp.Invalidate()
	for _, r := range s.Rollers {
		r.Invalidate()
	}
}

// CheckBall is the ramp's ball policy. A ball that rolls over the top of the
// ramp is dropped back into the grid. A ball that passes between the feed
// rollers is ground into balls of primary colors, as many whole
// stoichiometric amounts as it holds plus what is left over.
func (s *Show) CheckBall(b *ringramp.Ball, theta, omega float64) []*ringramp.Ball {
	now := b.Theta()

	switch {
	case theta <= topOfC && topOfC <= now:
		color := b.Color()
		s.logger.Debug("ball went over the top", "color", color, "omega", omega)
		s.loop.Spawn("perk-and-roll", func(t *sched.Task) error {
			return s.PerkAndRoll(t, time.Duration(s.cfg.Grid.Delay), color, s.Percolator.Top())
		})
		return nil

	case theta < 0 && 0 < now,
		theta > 0 && 0 > now && math.Max(math.Abs(theta), math.Abs(now)) < 1.5:
		return s.grind(b.Color())

	default:
		return []*ringramp.Ball{b}
	}
}

func (s *Show) grind(c lights.Color) []*ringramp.Ball {
	thr := s.Percolator.Threshold()

	var balls []*ringramp.Ball
	add := func(k, v int) {
		var part lights.Color
		part[k] = v
		omega := 4.5 + 0.2*s.rand.NormFloat64()
		balls = append(balls, ringramp.NewBall(groundTheta, omega, ringramp.DefaultDrag, part))
	}

	for k := range c {
		for thr[k] > 0 && c[k] >= thr[k] {
			add(k, thr[k])
			c[k] -= thr[k]
		}
		if c[k] > 0 {
			add(k, c[k])
		}
	}

	s.logger.Debug("ground ball", "into", len(balls))
	return balls
}

// PerkAndRoll drops color into the grid from cell start and puts whatever
// falls out of the bottom onto the ramp.
func (s *Show) PerkAndRoll(t *sched.Task, delay time.Duration, color lights.Color, start int) error {
	out, ok, err := s.Percolator.Droplet(t, delay, color, start)
	if err != nil || !ok {
		return err
	}
	s.roll(t, out)
	return nil
}

// roll puts a color released by the grid onto the ramp.
func (s *Show) roll(_ *sched.Task, c lights.Color) {
	b := ringramp.NewBall(entryTheta, entryOmega, ringramp.DefaultDrag, c)
	if err := s.Ramp.AddBall(b); err != nil {
		s.logger.Warn("dropped ball", "color", c, "error", err)
	}
}

// Master starts every part of the show and then keeps an eye on it.
func (s *Show) Master(t *sched.Task) error {
	s.Percolator.SeedMarkers()
	s.Percolator.Invalidate()

	t.Spawn("grid-sync", func(t *sched.Task) error {
		return s.Grid.KeepCurrent(t, time.Duration(s.cfg.Grid.SyncInterval))
	})
	t.Spawn("rings-sync", func(t *sched.Task) error {
		return s.Rings.KeepCurrent(t, time.Duration(s.cfg.Rings.SyncInterval))
	})

	t.Spawn("bingo", s.Percolator.Bingo)
	t.Spawn("ramp", func(t *sched.Task) error {
		return s.Ramp.IntegrateContinuously(t, time.Duration(s.cfg.Rings.Nap))
	})

	if len(s.Rollers) == 2 {
		colors := lights.RollerColors{
			Lower:  lights.FromRGB(s.cfg.Rings.LowerColor),
			Upper:  lights.FromRGB(s.cfg.Rings.UpperColor),
			Center: lights.FromRGB(s.cfg.Rings.CenterColor),
			Decay:  s.cfg.Rings.Decay,
		}
		t.Spawn("rollers", func(t *sched.Task) error {
			return lights.FeedRollers(t, s.Rollers[0], s.Rollers[1], colors, time.Duration(s.cfg.Rings.Spin))
		})
	}

	if s.cfg.Play {
		t.Spawn("play", s.Percolator.Play)
	}

	for {
		if err := t.Sleep(time.Second); err != nil {
			return err
		}
		s.logger.Debug(
			"show running",
			"balls", len(s.Ramp.Balls()),
			"grid_syncs", s.Grid.Syncs(),
			"rings_syncs", s.Rings.Syncs())
	}
}
