package lights

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/lightshow/internal/led"
	"libdb.so/lightshow/internal/sched"
)

// pattern returns n recognizable colors: (0,1,2), (3,4,5), ...
func pattern(n, start int) []Color {
	out := make([]Color, n)
	for i := range out {
		v := start + 3*i
		out[i] = Color{v, v + 1, v + 2}
	}
	return out
}

func newTestLights(n int) (*Lights, *led.Memory) {
	mem := led.NewMemory(n)
	l := New(NewStrip(mem, nil))
	l.SetRange(pattern(n, 0))
	return l, mem
}

func TestRangeSliceComposes(t *testing.T) {
	root := NewRange(20)

	tests := []struct {
		name   string
		outer  [3]int
		inner  [3]int
		direct [3]int
	}{
		{"forward", [3]int{2, 18, 1}, [3]int{3, 10, 2}, [3]int{5, 12, 2}},
		{"reverse of forward", [3]int{4, 16, 1}, [3]int{-1, Open, -3}, [3]int{15, 3, -3}},
		{"negative bounds", [3]int{-10, Open, 1}, [3]int{-4, -1, 1}, [3]int{16, 19, 1}},
		{"clamped", [3]int{5, 100, 1}, [3]int{-100, 3, 1}, [3]int{5, 8, 1}},
		{"strided twice", [3]int{1, Open, 2}, [3]int{1, Open, 3}, [3]int{3, 20, 6}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			outer, err := root.Slice(test.outer[0], test.outer[1], test.outer[2])
			require.NoError(t, err)
			inner, err := outer.Slice(test.inner[0], test.inner[1], test.inner[2])
			require.NoError(t, err)
			direct, err := root.Slice(test.direct[0], test.direct[1], test.direct[2])
			require.NoError(t, err)

			assert.Equal(t, direct.Indices(), inner.Indices())
		})
	}

	_, err := root.Slice(0, 5, 0)
	assert.Error(t, err)
}

func TestRangeAt(t *testing.T) {
	r := Range{Start: 3, Stop: 9, Step: 2} // 3, 5, 7

	k, err := r.At(-1)
	require.NoError(t, err)
	assert.Equal(t, 7, k)

	for _, i := range []int{3, -4, 100} {
		_, err := r.At(i)
		var ierr *IndexError
		require.True(t, errors.As(err, &ierr), "index %d", i)
		assert.Equal(t, i, ierr.Index)
		assert.Equal(t, 3, ierr.Len)
	}
}

func TestSliceSharesLattice(t *testing.T) {
	l, _ := newTestLights(8)

	s := l.Slice(0, 2)
	assert.Equal(t, 2, s.Len())
	assert.Same(t, l.Lattice(), s.Lattice())
	assert.Equal(t, pattern(2, 0), s.Colors())

	s = l.Stride(-2, -6, -2)
	assert.Equal(t, []Color{{18, 19, 20}, {12, 13, 14}}, s.Colors())
}

func TestSliceWrites(t *testing.T) {
	l, _ := newTestLights(8)
	s := l.Stride(-2, -6, -2)

	s.Set(1, Color{10, 9, 8})
	assert.Equal(t, []Color{{18, 19, 20}, {10, 9, 8}}, s.Colors())

	s.SetRange([]Color{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}})
	assert.Equal(t, Color{1, 1, 1}, *l.Get(6))
	assert.Equal(t, Color{2, 2, 2}, *l.Get(4))

	ref := pattern(8, 0)
	for i := 0; i < 8; i++ {
		if i == 4 || i == 6 {
			continue
		}
		assert.Equal(t, ref[i], *l.Get(i), "cell %d", i)
	}
}

func TestSetVersusUpdateIdentity(t *testing.T) {
	l, _ := newTestLights(4)

	alias := l.Get(1)
	l.Update(1, 100, 101)
	assert.Same(t, alias, l.Get(1), "in-place update keeps the cell")
	assert.Equal(t, Color{100, 101, 5}, *alias)

	l.Set(1, Color{7, 7, 7})
	assert.NotSame(t, alias, l.Get(1), "wholesale set replaces the cell")
	assert.Equal(t, Color{100, 101, 5}, *alias)
	assert.Equal(t, Color{7, 7, 7}, *l.Get(1))

	assert.PanicsWithError(t, ErrColorLength.Error(), func() { l.Update(1, 1, 2, 3, 4) })
}

func TestIndexBounds(t *testing.T) {
	l, _ := newTestLights(4)

	assert.Equal(t, Color{9, 10, 11}, *l.Get(-1))
	assert.Equal(t, Color{0, 1, 2}, *l.Get(-4))

	for _, i := range []int{4, -5} {
		i := i
		assert.Panics(t, func() { l.Get(i) }, "index %d", i)
	}

	_, err := l.Index(-5)
	var ierr *IndexError
	assert.True(t, errors.As(err, &ierr))
}

func TestAddSubCancel(t *testing.T) {
	l, _ := newTestLights(4)
	before := l.Colors()

	x := Color{300, -20, 7}
	l.SubColorFrom(2, x)
	assert.Equal(t, Color{6 - 300, 7 + 20, 8 - 7}, *l.Get(2), "channels go out of range freely")
	l.AddColorTo(2, x)

	assert.Equal(t, before, l.Colors())
}

func TestRenderBrightness(t *testing.T) {
	l, mem := newTestLights(4)
	l.Clear()
	l.Set(0, Color{12, 34, 56})
	l.Set(1, Color{-5, 300, 255})

	l.Render()
	assert.Equal(t, led.RGBColor{12, 34, 56}, mem.LED(0))
	assert.Equal(t, led.RGBColor{0, 255, 255}, mem.LED(1))
	assert.Equal(t, led.RGBColor{}, mem.LED(2))

	for _, test := range []struct {
		brightness float64
		want       led.RGBColor
	}{
		{0.5, led.RGBColor{6, 17, 28}},
		{0.1, led.RGBColor{1, 3, 6}},
		{0, led.RGBColor{}},
	} {
		l.SetBrightness(test.brightness)
		l.Render()
		assert.Equal(t, test.want, mem.LED(0), "brightness %v", test.brightness)
	}

	assert.Equal(t, 0, mem.Syncs, "rendering does not sync")
}

func TestRenderSliceWritesOwnLEDs(t *testing.T) {
	l, mem := newTestLights(8)
	s := l.Slice(3, 6)
	s.Render()

	for i := 0; i < 8; i++ {
		if i >= 3 && i < 6 {
			c := pattern(8, 0)[i]
			assert.Equal(t, led.RGBColor{uint8(c[0]), uint8(c[1]), uint8(c[2])}, mem.LED(i))
		} else {
			assert.Equal(t, led.RGBColor{}, mem.LED(i))
		}
	}
}

func TestGearRotation(t *testing.T) {
	l, mem := newTestLights(8)
	g := NewGear(l).Slice(3, 6)
	coloring := []Color{{110, 120, 130}, {140, 150, 160}, {170, 180, 190}}
	g.SetRange(coloring)

	rendered := func() []Color {
		out := make([]Color, 3)
		for i := range out {
			c := mem.LED(3 + i)
			out[i] = Color{int(c[0]), int(c[1]), int(c[2])}
		}
		return out
	}
	rotated := func(by int) []Color {
		out := make([]Color, 3)
		for i := range out {
			out[i] = coloring[(i+by)%3]
		}
		return out
	}

	for _, by := range []int{1, 2, 0} {
		g.Clockwise(1)
		g.Render()
		assert.Equal(t, rotated(by), rendered())
	}
	for _, by := range []int{2, 1, 0} {
		g.CounterClockwise(1)
		g.Render()
		assert.Equal(t, rotated(by), rendered())
	}

	assert.Equal(t, coloring, g.Colors(), "rotation does not move colors")
}

func TestJewel7Render(t *testing.T) {
	l, mem := newTestLights(14)
	j := NewJewel7(l.Slice(7, 14))
	assert.Equal(t, 6, j.Gear.Len())

	j.Gear.Clockwise(2)
	j.Render()

	assert.Equal(t, led.RGBColor{21, 22, 23}, mem.LED(7), "center")
	assert.Equal(t, led.RGBColor{30, 31, 32}, mem.LED(8), "gear starts two teeth on")
	assert.Equal(t, led.RGBColor{27, 28, 29}, mem.LED(13))
}

func TestKeepCurrentRateLimits(t *testing.T) {
	mem := led.NewMemory(4)
	strip := NewStrip(mem, nil)
	l := New(strip)

	clock := sched.NewManualClock(time.Unix(0, 0))
	loop := sched.NewLoop(clock, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Spawn("sync", func(t *sched.Task) error {
		return strip.KeepCurrent(t, 10*time.Millisecond)
	})
	loop.Spawn("writer", func(t *sched.Task) error {
		// Twenty changes, 1ms apart, fit in two or three sync intervals.
		for i := 0; i < 20; i++ {
			l.Set(0, Color{i, 0, 0})
			if err := l.ShowFor(t, time.Millisecond); err != nil {
				return err
			}
		}
		if err := t.Sleep(50 * time.Millisecond); err != nil {
			return err
		}
		cancel()
		return nil
	})

	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.LessOrEqual(t, mem.Syncs, 3)
	assert.GreaterOrEqual(t, mem.Syncs, 2)
	assert.Equal(t, led.RGBColor{19, 0, 0}, mem.Synced[0], "the last change is flushed")
	assert.False(t, strip.Dirty())
}

func TestPaintRollers(t *testing.T) {
	l, _ := newTestLights(14)
	lower := NewJewel7(l.Slice(0, 7))
	upper := NewJewel7(l.Slice(7, 14))

	PaintRollers(lower, upper, RollerColors{
		Lower:  Color{200, 0, 0},
		Upper:  Color{0, 100, 0},
		Center: Color{0, 0, 8},
		Decay:  0.5,
	})

	assert.Equal(t, Color{0, 0, 8}, *lower.Center())
	assert.Equal(t, Color{0, 0, 8}, *upper.Center())
	assert.Equal(t, []Color{
		{200, 0, 0}, {100, 0, 0}, {50, 0, 0}, {25, 0, 0}, {13, 0, 0}, {6, 0, 0},
	}, lower.Gear.Colors())

	// Tooth i of the upper trail sits at (3-i) mod 6.
	up := upper.Gear.Colors()
	for i, v := range []int{100, 50, 25, 13, 6, 3} {
		assert.Equal(t, Color{0, v, 0}, up[((3-i)%6+6)%6], "tooth %d", i)
	}
}

func TestFeedRollersTurn(t *testing.T) {
	l, _ := newTestLights(14)
	lower := NewJewel7(l.Slice(0, 7))
	upper := NewJewel7(l.Slice(7, 14))

	clock := sched.NewManualClock(time.Unix(0, 0))
	loop := sched.NewLoop(clock, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Spawn("rollers", func(t *sched.Task) error {
		return FeedRollers(t, lower, upper, RollerColors{Lower: Color{9, 0, 0}, Decay: 0.3}, 20*time.Millisecond)
	})
	loop.Spawn("stop", func(t *sched.Task) error {
		if err := t.Sleep(50 * time.Millisecond); err != nil {
			return err
		}
		cancel()
		return nil
	})

	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
	// Turned at 0, 20 and 40ms.
	assert.Equal(t, 3.0, lower.Gear.Phase)
	assert.Equal(t, 3.0, upper.Gear.Phase)
	assert.True(t, l.Strip().Dirty())
}

func TestGearSpin(t *testing.T) {
	l, _ := newTestLights(4)
	g := NewGear(l)

	loop := sched.NewLoop(sched.NewManualClock(time.Unix(0, 0)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Spawn("spin", func(t *sched.Task) error {
		return g.Spin(t, -0.5, 10*time.Millisecond)
	})
	loop.Spawn("stop", func(t *sched.Task) error {
		if err := t.Sleep(35 * time.Millisecond); err != nil {
			return err
		}
		cancel()
		return nil
	})

	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
	// Turned back half a tooth at 0, 10, 20 and 30ms.
	assert.Equal(t, 2.0, g.Phase)
}
