package lightshow

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/lightshow/internal/led"
	"libdb.so/lightshow/internal/lights"
	"libdb.so/lightshow/internal/ringramp"
	"libdb.so/lightshow/internal/sched"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// spawnRecorder records the names of spawned tasks without running them.
type spawnRecorder struct {
	names []string
}

func (s *spawnRecorder) Spawn(name string, fn sched.Func) *sched.Task {
	s.names = append(s.names, name)
	return nil
}

func newTestShow(t *testing.T, loop sched.Spawner) (*Show, *led.Memory) {
	cfg := DefaultConfig()
	mem := led.NewMemory(cfg.NumLEDs())
	grid, rings := led.Split(mem, cfg.GridLEDs())

	s, err := NewShow(loop, grid, rings, cfg, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	return s, mem
}

func TestNewShowTooShort(t *testing.T) {
	cfg := DefaultConfig()
	grid, rings := led.Split(led.NewMemory(cfg.NumLEDs()-1), cfg.GridLEDs())

	_, err := NewShow(&spawnRecorder{}, grid, rings, cfg, nil, nil)
	assert.Error(t, err)
}

func TestCheckBallOverTheTop(t *testing.T) {
	spawner := &spawnRecorder{}
	s, _ := newTestShow(t, spawner)

	b := ringramp.NewBall(-2.3, -1, ringramp.DefaultDrag, lights.Color{3, 0, 0})
	assert.Empty(t, s.CheckBall(b, -2.5, -1))
	assert.Equal(t, []string{"perk-and-roll"}, spawner.names)
}

func TestCheckBallGrinds(t *testing.T) {
	s, _ := newTestShow(t, &spawnRecorder{})

	for _, cross := range [][2]float64{{-0.1, 0.1}, {0.1, -0.1}} {
		b := ringramp.NewBall(cross[1], 1, ringramp.DefaultDrag, lights.Color{17, 8, 0})

		balls := s.CheckBall(b, cross[0], 1)
		require.Len(t, balls, 4)

		var colors []lights.Color
		for _, ball := range balls {
			colors = append(colors, ball.Color())
			assert.InDelta(t, groundTheta, ball.Theta(), 1e-9)
			assert.InDelta(t, 4.5, ball.Omega, 1.5)
		}
		assert.Equal(t, []lights.Color{{8, 0, 0}, {8, 0, 0}, {1, 0, 0}, {0, 8, 0}}, colors)
	}
}

func TestCheckBallKeeps(t *testing.T) {
	spawner := &spawnRecorder{}
	s, _ := newTestShow(t, spawner)

	tests := []struct {
		name      string
		then, now float64
	}{
		{"rolling on the left", -1.0, -0.9},
		{"rolling on the right", 1.0, 1.1},
		{"wrapping at the bottom", 3.1, -3.1},
		{"climbing back from the top", -2.3, -2.5},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := ringramp.NewBall(test.now, 0, ringramp.DefaultDrag, lights.Color{1, 2, 3})
			balls := s.CheckBall(b, test.then, 0)
			require.Len(t, balls, 1)
			assert.Same(t, b, balls[0])
		})
	}

	assert.Empty(t, spawner.names)
}

func TestRollAddsBall(t *testing.T) {
	s, _ := newTestShow(t, &spawnRecorder{})

	s.roll(nil, lights.Color{0, 0, 5})

	balls := s.Ramp.Balls()
	require.Len(t, balls, 1)
	assert.Equal(t, lights.Color{0, 0, 5}, balls[0].Color())
	assert.InDelta(t, 2*math.Pi*-7/60, balls[0].Theta(), 1e-9)
	assert.Equal(t, entryOmega, balls[0].Omega)
}

func TestSetBrightness(t *testing.T) {
	s, _ := newTestShow(t, &spawnRecorder{})
	assert.InDelta(t, 31.0/255, s.Percolator.Brightness(), 1e-9)

	s.SetBrightness(1)
	assert.Equal(t, 1.0, s.Percolator.Brightness())
	assert.Equal(t, 1.0, s.Ramp.Brightness())
	for _, r := range s.Rollers {
		assert.Equal(t, 1.0, r.Brightness())
	}
}

func TestPerkAndRoll(t *testing.T) {
	loop := sched.NewLoop(sched.NewManualClock(epoch), nil)
	s, _ := newTestShow(t, loop)

	// The midline takes 8 red and lets the rest through.
	loop.Spawn("droplet", func(t *sched.Task) error {
		return s.PerkAndRoll(t, 10*time.Millisecond, lights.Color{9, 0, 0}, s.Percolator.Top())
	})
	require.NoError(t, loop.Run(context.Background()))

	balls := s.Ramp.Balls()
	require.Len(t, balls, 1)
	assert.Equal(t, lights.Color{1, 0, 0}, balls[0].Color())

	var held lights.Color
	for _, c := range s.Percolator.Colors() {
		held = held.Add(c)
	}
	assert.Equal(t, lights.Color{8, 0, 0}, held)
}

func TestPerkAndRollAbsorbed(t *testing.T) {
	loop := sched.NewLoop(sched.NewManualClock(epoch), nil)
	s, _ := newTestShow(t, loop)

	loop.Spawn("droplet", func(t *sched.Task) error {
		return s.PerkAndRoll(t, 10*time.Millisecond, lights.Color{0, 3, 0}, s.Percolator.Top())
	})
	require.NoError(t, loop.Run(context.Background()))

	assert.Empty(t, s.Ramp.Balls())
}

func TestMasterRuns(t *testing.T) {
	errDone := errors.New("done")

	loop := sched.NewLoop(sched.NewManualClock(epoch), nil)
	s, mem := newTestShow(t, loop)
	s.cfg.Play = true

	loop.Spawn("master", s.Master)
	loop.Spawn("stop", func(t *sched.Task) error {
		if err := t.Sleep(5 * time.Second); err != nil {
			return err
		}
		return errDone
	})

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, errDone)

	assert.Greater(t, s.Grid.Syncs(), 0)
	assert.Greater(t, s.Rings.Syncs(), 0)
	assert.Greater(t, mem.Syncs, 0)

	lit := false
	for _, c := range mem.Synced {
		if c != (led.RGBColor{}) {
			lit = true
			break
		}
	}
	assert.True(t, lit, "some LED was shown")
}

func TestDaemonRecordsSim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.Record = filepath.Join(t.TempDir(), "show.rec")

	d, err := NewDaemon(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = d.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f, err := os.Open(cfg.Record)
	require.NoError(t, err)
	defer f.Close()

	mem := led.NewMemory(cfg.NumLEDs())
	require.NoError(t, PlayRecording(context.Background(), f, mem))
	assert.Greater(t, mem.Syncs, 0)
}
