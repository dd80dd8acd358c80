// Package eventloop runs host callbacks on a single goroutine.
//
// Module instances are not safe for concurrent use, so everything that
// re-enters a module (timer callbacks, promise reactions, completed HTTP
// requests) runs as a task on the loop goroutine. Other goroutines hand work
// over with Post and keep the loop alive with Hold while it is in flight.
//
// After each task the microtask queue is drained, so promise reactions run
// before the next timer or posted task.
package eventloop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work run on the loop goroutine. A task error stops the loop.
type Task func(ctx context.Context) error

// Loop is a single-threaded cooperative executor.
type Loop struct {
	logger *zap.Logger
	now    func() time.Time

	// guarded by mu; touched from any goroutine
	mu      sync.Mutex
	posted  []queued
	holds   int
	stopped bool
	stopErr error
	wake    chan struct{}

	// loop goroutine only
	tasks  []queued
	micro  []Task
	timers timerHeap
	byID   map[int32]*timer
	nextID int32
	seq    uint64
}

// New returns an idle loop. A nil logger disables logging.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		logger: logger,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		byID:   make(map[int32]*timer),
	}
}

// queued is a posted task. discard, when set, runs instead of the task if
// the loop stops first.
type queued struct {
	run     Task
	discard func()
}

// Post schedules task from any goroutine.
func (l *Loop) Post(task Task) {
	l.PostOrDiscard(task, nil)
}

// PostOrDiscard schedules task from any goroutine. If the loop has stopped,
// or stops before task runs, discard is called instead, exactly once. Use it
// to release state that task would have handed to the module.
func (l *Loop) PostOrDiscard(task Task, discard func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		if discard != nil {
			discard()
		}
		return
	}
	l.posted = append(l.posted, queued{run: task, discard: discard})
	l.mu.Unlock()
	l.signal()
}

// QueueMicrotask schedules task to run after the current task. Loop goroutine only.
func (l *Loop) QueueMicrotask(task Task) {
	l.micro = append(l.micro, task)
}

// Hold keeps Run from returning while external work is in flight. The
// returned release function may be called from any goroutine, once.
func (l *Loop) Hold() (release func()) {
	l.mu.Lock()
	l.holds++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holds--
			l.mu.Unlock()
			l.signal()
		})
	}
}

// Stop makes Run return err after the current task. Safe from any goroutine.
// Only the first call takes effect.
// Posted tasks that have not been picked up yet are discarded.
func (l *Loop) Stop(err error) {
	l.mu.Lock()
	var pending []queued
	if !l.stopped {
		l.stopped = true
		l.stopErr = err
		pending, l.posted = l.posted, nil
	}
	l.mu.Unlock()
	for _, q := range pending {
		if q.discard != nil {
			q.discard()
		}
	}
	l.signal()
}

// Stopped reports whether Stop was called, and with which error.
func (l *Loop) Stopped() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped, l.stopErr
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes tasks until there is nothing left to do, ctx is done, or
// Stop is called. Idle means no queued tasks, no pending timers and no holds.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		holds, stopped, stopErr := l.collect()
		if stopped {
			l.discardQueued()
			return stopErr
		}

		if len(l.tasks) > 0 {
			task := l.tasks[0]
			l.tasks[0] = queued{}
			l.tasks = l.tasks[1:]
			l.runTask(ctx, task.run)
			continue
		}
		if l.fireTimer(ctx) {
			continue
		}
		if l.timers.Len() == 0 && holds == 0 {
			return nil
		}

		var timerC <-chan time.Time
		var wait *time.Timer
		if l.timers.Len() > 0 {
			wait = time.NewTimer(l.timers[0].when.Sub(l.now()))
			timerC = wait.C
		}
		select {
		case <-ctx.Done():
		case <-l.wake:
		case <-timerC:
		}
		if wait != nil {
			wait.Stop()
		}
	}
}

func (l *Loop) collect() (holds int, stopped bool, stopErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append(l.tasks, l.posted...)
	l.posted = nil
	return l.holds, l.stopped, l.stopErr
}

// discardQueued drops collected tasks that will never run. Loop goroutine only.
func (l *Loop) discardQueued() {
	pending := l.tasks
	l.tasks = nil
	for _, q := range pending {
		if q.discard != nil {
			q.discard()
		}
	}
}

func (l *Loop) runTask(ctx context.Context, task Task) {
	if err := task(ctx); err != nil {
		l.logger.Debug("task failed", zap.Error(err))
		l.Stop(err)
		return
	}
	l.DrainMicrotasks(ctx)
}

// DrainMicrotasks runs queued microtasks, including ones queued while
// draining. Loop goroutine only.
func (l *Loop) DrainMicrotasks(ctx context.Context) {
	for len(l.micro) > 0 {
		m := l.micro[0]
		l.micro[0] = nil
		l.micro = l.micro[1:]
		if err := m(ctx); err != nil {
			l.logger.Debug("microtask failed", zap.Error(err))
			l.Stop(err)
			l.micro = nil
			return
		}
	}
}

type timer struct {
	task  Task
	when  time.Time
	seq   uint64
	id    int32
	index int
}

// SetTimeout runs task after d and returns a positive timer id. Loop goroutine only.
func (l *Loop) SetTimeout(d time.Duration, task Task) int32 {
	if d < 0 {
		d = 0
	}
	l.nextID++
	if l.nextID <= 0 {
		l.nextID = 1
	}
	l.seq++
	t := &timer{task: task, when: l.now().Add(d), seq: l.seq, id: l.nextID}
	heap.Push(&l.timers, t)
	l.byID[t.id] = t
	return t.id
}

// ClearTimeout cancels a pending timer. Unknown ids are ignored.
func (l *Loop) ClearTimeout(id int32) {
	t, ok := l.byID[id]
	if !ok {
		return
	}
	delete(l.byID, id)
	heap.Remove(&l.timers, t.index)
}

func (l *Loop) fireTimer(ctx context.Context) bool {
	if l.timers.Len() == 0 || l.timers[0].when.After(l.now()) {
		return false
	}
	t := heap.Pop(&l.timers).(*timer)
	delete(l.byID, t.id)
	l.runTask(ctx, t.task)
	return true
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	t.index = -1
	return t
}

type ctxKeyLoop struct{}

// WithLoop returns a context carrying l.
func WithLoop(ctx context.Context, l *Loop) context.Context {
	return context.WithValue(ctx, ctxKeyLoop{}, l)
}

// FromContext returns the loop carried by ctx, or nil.
func FromContext(ctx context.Context) *Loop {
	if v := ctx.Value(ctxKeyLoop{}); v != nil {
		return v.(*Loop)
	}
	return nil
}
