// Package sched implements a single-threaded cooperative scheduler.
//
// Every task runs on its own goroutine, but the Loop hands control to exactly
// one task at a time, and a task only gives it back at Sleep, Yield, Await or
// when it returns. Tasks may therefore share state without locks as long as
// they don't expect it to stay unchanged across a suspension point.
package sched

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// ErrStopped is returned from suspension points once the Loop is shutting
// down. Tasks should return it (or any wrapping of it) promptly.
var ErrStopped = errors.New("scheduler stopped")

// Func is the body of a task.
type Func func(t *Task) error

// Spawner starts tasks. Both Loop and Task are Spawners.
type Spawner interface {
	Spawn(name string, fn Func) *Task
}

var (
	_ Spawner = (*Loop)(nil)
	_ Spawner = (*Task)(nil)
)

// Loop multiplexes tasks onto one logical thread.
type Loop struct {
	clock  Clock
	logger *slog.Logger

	ready    []*Task
	sleeping sleepQueue
	tasks    []*Task // unfinished
	parked   chan struct{}
	seq      uint64

	running  bool
	stopping bool
	err      error
}

// NewLoop creates a new Loop. If clock is nil, the wall clock is used.
func NewLoop(clock Clock, logger *slog.Logger) *Loop {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		clock:  clock,
		logger: logger,
		parked: make(chan struct{}),
	}
}

// Now returns the loop's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Spawn creates a new task that becomes ready immediately. It must be called
// either before Run or from within a running task.
func (l *Loop) Spawn(name string, fn Func) *Task {
	t := &Task{
		loop:   l,
		name:   name,
		fn:     fn,
		resume: make(chan struct{}),
	}

	l.tasks = append(l.tasks, t)
	l.ready = append(l.ready, t)
	go t.run()

	return t
}

// Run drives the tasks until they have all finished, one of them fails, or
// ctx is done. Before returning, every remaining task is resumed with
// ErrStopped and allowed to return. A Loop can only be run once.
func (l *Loop) Run(ctx context.Context) error {
	if l.running || l.stopping {
		return errors.New("loop already ran")
	}
	l.running = true

	err := l.run(ctx)
	l.shutdown()

	if l.err != nil {
		return l.err
	}
	return err
}

func (l *Loop) run(ctx context.Context) error {
	for l.err == nil {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.wakeSleepers(l.clock.Now())

		if len(l.ready) == 0 {
			if l.sleeping.Len() == 0 {
				if len(l.tasks) > 0 {
					return errors.Errorf("deadlock: %d tasks waiting on each other", len(l.tasks))
				}
				return nil
			}

			wake := l.sleeping[0].wake
			if err := l.clock.WaitUntil(ctx, wake); err != nil {
				return err
			}

			limit := l.clock.Now()
			if limit.Before(wake) {
				limit = wake
			}
			l.wakeSleepers(limit)
			continue
		}

		t := l.ready[0]
		l.ready[0] = nil
		l.ready = l.ready[1:]
		l.step(t)
	}

	return nil
}

func (l *Loop) wakeSleepers(now time.Time) {
	for l.sleeping.Len() > 0 && !l.sleeping[0].wake.After(now) {
		s := heap.Pop(&l.sleeping).(sleeper)
		l.ready = append(l.ready, s.task)
	}
}

// step hands control to t and waits until it suspends or finishes.
func (l *Loop) step(t *Task) {
	t.resume <- struct{}{}
	<-l.parked
}

func (l *Loop) shutdown() {
	l.stopping = true
	l.ready = nil
	l.sleeping = nil

	for len(l.tasks) > 0 {
		l.step(l.tasks[0])
	}
}

func (l *Loop) finished(t *Task) {
	for i, other := range l.tasks {
		if other == t {
			l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
			break
		}
	}

	if !l.stopping {
		l.ready = append(l.ready, t.waiters...)
	}
	t.waiters = nil

	switch {
	case t.err == nil:
		l.logger.Debug("task finished", "task", t.name)
	case errors.Is(t.err, ErrStopped):
		l.logger.Debug("task stopped", "task", t.name)
	default:
		l.logger.Error("task failed", "task", t.name, "error", t.err)
		if l.err == nil && !l.stopping {
			l.err = errors.Wrapf(t.err, "task %s", t.name)
		}
	}
}

// Task is a cooperatively scheduled routine.
type Task struct {
	loop    *Loop
	name    string
	fn      Func
	resume  chan struct{}
	done    bool
	err     error
	waiters []*Task
}

func (t *Task) run() {
	<-t.resume

	var err error
	if t.loop.stopping {
		err = ErrStopped
	} else {
		err = t.fn(t)
	}

	t.done = true
	t.err = err
	t.loop.finished(t)
	t.loop.parked <- struct{}{}
}

// suspend gives control back to the loop until something makes t ready.
func (t *Task) suspend() error {
	if t.loop.stopping {
		return ErrStopped
	}

	t.loop.parked <- struct{}{}
	<-t.resume

	if t.loop.stopping {
		return ErrStopped
	}
	return nil
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Done reports whether the task has returned.
func (t *Task) Done() bool { return t.done }

// Err returns the error the task returned, if it is done.
func (t *Task) Err() error { return t.err }

// Now returns the loop's current time.
func (t *Task) Now() time.Time { return t.loop.clock.Now() }

// Sleep suspends the task for at least d. A non-positive d is a Yield.
func (t *Task) Sleep(d time.Duration) error {
	if d <= 0 {
		return t.Yield()
	}
	if t.loop.stopping {
		return ErrStopped
	}

	t.loop.seq++
	heap.Push(&t.loop.sleeping, sleeper{
		task: t,
		wake: t.loop.clock.Now().Add(d),
		seq:  t.loop.seq,
	})

	return t.suspend()
}

// Yield lets every other ready task run before t continues.
func (t *Task) Yield() error {
	if t.loop.stopping {
		return ErrStopped
	}
	t.loop.ready = append(t.loop.ready, t)
	return t.suspend()
}

// Spawn starts a new task without waiting for it.
func (t *Task) Spawn(name string, fn Func) *Task {
	return t.loop.Spawn(name, fn)
}

// Await suspends until other has finished and returns its error.
func (t *Task) Await(other *Task) error {
	if other == t {
		return errors.New("task cannot await itself")
	}
	if other.done {
		return other.err
	}

	other.waiters = append(other.waiters, t)
	err := t.suspend()
	if other.done {
		return other.err
	}
	return err
}

type sleeper struct {
	task *Task
	wake time.Time
	seq  uint64
}

// sleepQueue is a min-heap of sleepers ordered by wake time, then by the
// order in which they went to sleep.
type sleepQueue []sleeper

func (q sleepQueue) Len() int { return len(q) }

func (q sleepQueue) Less(i, j int) bool {
	if q[i].wake.Equal(q[j].wake) {
		return q[i].seq < q[j].seq
	}
	return q[i].wake.Before(q[j].wake)
}

func (q sleepQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *sleepQueue) Push(x any) { *q = append(*q, x.(sleeper)) }

func (q *sleepQueue) Pop() any {
	old := *q
	n := len(old)
	s := old[n-1]
	*q = old[:n-1]
	return s
}
