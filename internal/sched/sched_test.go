package sched

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestLoop() (*Loop, *ManualClock) {
	clock := NewManualClock(epoch)
	return NewLoop(clock, nil), clock
}

func TestYieldInterleaves(t *testing.T) {
	loop, _ := newTestLoop()

	var trace []string
	for _, name := range []string{"a", "b"} {
		name := name
		loop.Spawn(name, func(t *Task) error {
			for i := 0; i < 3; i++ {
				trace = append(trace, fmt.Sprintf("%s%d", name, i))
				if err := t.Yield(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []string{"a0", "b0", "a1", "b1", "a2", "b2"}, trace)
}

func TestSleepOrder(t *testing.T) {
	loop, clock := newTestLoop()

	var trace []string
	sleeper := func(name string, d time.Duration) Func {
		return func(t *Task) error {
			if err := t.Sleep(d); err != nil {
				return err
			}
			trace = append(trace, fmt.Sprintf("%s@%s", name, t.Now().Sub(epoch)))
			return nil
		}
	}

	loop.Spawn("slow", sleeper("slow", 30*time.Millisecond))
	loop.Spawn("fast", sleeper("fast", 10*time.Millisecond))
	loop.Spawn("tie1", sleeper("tie1", 20*time.Millisecond))
	loop.Spawn("tie2", sleeper("tie2", 20*time.Millisecond))

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []string{"fast@10ms", "tie1@20ms", "tie2@20ms", "slow@30ms"}, trace)
	assert.Equal(t, 30*time.Millisecond, clock.Now().Sub(epoch))
}

func TestSpawnDoesNotWait(t *testing.T) {
	loop, _ := newTestLoop()

	var trace []string
	loop.Spawn("parent", func(t *Task) error {
		child := t.Spawn("child", func(t *Task) error {
			trace = append(trace, "child")
			return nil
		})
		trace = append(trace, "spawned")

		if err := t.Await(child); err != nil {
			return err
		}
		trace = append(trace, "awaited")
		return nil
	})

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []string{"spawned", "child", "awaited"}, trace)
}

func TestAwaitReturnsTaskError(t *testing.T) {
	loop, _ := newTestLoop()

	errBoom := errors.New("boom")
	var got error
	loop.Spawn("parent", func(t *Task) error {
		child := t.Spawn("child", func(t *Task) error {
			if err := t.Sleep(time.Second); err != nil {
				return err
			}
			return errBoom
		})
		got = t.Await(child)
		return nil
	})

	err := loop.Run(context.Background())
	assert.ErrorIs(t, got, errBoom)
	assert.ErrorIs(t, err, errBoom, "a failing task stops the loop")
}

func TestCancelStopsForeverTasks(t *testing.T) {
	loop, _ := newTestLoop()

	ctx, cancel := context.WithCancel(context.Background())

	var ticks int
	forever := loop.Spawn("forever", func(t *Task) error {
		for {
			ticks++
			if err := t.Sleep(10 * time.Millisecond); err != nil {
				return err
			}
		}
	})
	loop.Spawn("canceller", func(t *Task) error {
		if err := t.Sleep(55 * time.Millisecond); err != nil {
			return err
		}
		cancel()
		return nil
	})

	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, forever.Done())
	assert.ErrorIs(t, forever.Err(), ErrStopped)
	assert.Equal(t, 6, ticks)
}

func TestDeadlock(t *testing.T) {
	loop, _ := newTestLoop()

	var a, b *Task
	a = loop.Spawn("a", func(t *Task) error { return t.Await(b) })
	b = loop.Spawn("b", func(t *Task) error { return t.Await(a) })

	err := loop.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, a.Done())
	assert.True(t, b.Done())
}

func TestRunOnlyOnce(t *testing.T) {
	loop, _ := newTestLoop()
	require.NoError(t, loop.Run(context.Background()))
	assert.Error(t, loop.Run(context.Background()))
}
