package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/job"
	"cronbot/internal/notify"
	rtsup "cronbot/internal/runtime/supervisor"
	logx "cronbot/pkg/logx"
)

// wakeItem is one (job id, run time) pair in the wake heap.
type wakeItem struct {
	id    string
	at    time.Time
	index int
}

type wakeHeap []*wakeItem

func (h wakeHeap) Len() int { return len(h) }
func (h wakeHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}
func (h wakeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *wakeHeap) Push(x any) {
	it := x.(*wakeItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *wakeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Dispatcher sleeps until the earliest next run, claims due jobs from the
// registry and fires them on supervised goroutines.
//
// It only ever holds job ids and run times; the registry owns the jobs.
type Dispatcher struct {
	log      logx.Logger
	bus      eventbus.Bus
	clock    Clock
	poll     time.Duration
	notifier notify.Notifier
	reg      *Registry

	mu    sync.Mutex
	heap  wakeHeap
	items map[string]*wakeItem

	wakeCh chan struct{}

	runMu   sync.Mutex
	running bool
	stopped bool
	loop    *rtsup.Supervisor
	fires   *rtsup.Supervisor
}

func newDispatcher(log logx.Logger, bus eventbus.Bus, clock Clock, poll time.Duration, n notify.Notifier) *Dispatcher {
	return &Dispatcher{
		log:      log,
		bus:      bus,
		clock:    clock,
		poll:     poll,
		notifier: n,
		items:    map[string]*wakeItem{},
		wakeCh:   make(chan struct{}, 1),
	}
}

// schedule sets the wake time of id, waking the loop if it moved to the front.
func (d *Dispatcher) schedule(id string, at time.Time) {
	d.mu.Lock()
	if it, ok := d.items[id]; ok {
		it.at = at
		heap.Fix(&d.heap, it.index)
	} else {
		it := &wakeItem{id: id, at: at}
		heap.Push(&d.heap, it)
		d.items[id] = it
	}
	front := d.heap[0].id == id
	d.mu.Unlock()

	if front {
		d.Wake()
	}
}

func (d *Dispatcher) unschedule(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if it, ok := d.items[id]; ok {
		heap.Remove(&d.heap, it.index)
		delete(d.items, id)
	}
}

// Wake interrupts the loop's sleep so it re-reads the heap.
func (d *Dispatcher) Wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// Pending reports how many jobs are waiting to fire.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.heap)
}

// NextWake returns the earliest scheduled run, if any.
func (d *Dispatcher) NextWake() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.heap) == 0 {
		return time.Time{}, false
	}
	return d.heap[0].at, true
}

// popDue removes and returns every id whose run time is <= now.
func (d *Dispatcher) popDue(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for len(d.heap) > 0 && !d.heap[0].at.After(now) {
		it := heap.Pop(&d.heap).(*wakeItem)
		delete(d.items, it.id)
		ids = append(ids, it.id)
	}
	return ids
}

func (d *Dispatcher) start(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	if d.running {
		return nil
	}
	d.running = true

	// Firings must outlive the loop so Stop can wait for them.
	d.fires = rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(d.log.With(logx.String("comp", "scheduler.fire"))))
	d.loop = rtsup.New(ctx, rtsup.WithLogger(d.log.With(logx.String("comp", "scheduler.loop"))))
	d.loop.GoRestart("scheduler.dispatch", func(c context.Context) error {
		d.run(c)
		return nil
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	d.log.Info("dispatcher started", logx.Duration("poll_interval", d.poll), logx.Int("pending", d.Pending()))
	return nil
}

// stop ends the loop, then waits for in-flight firings until ctx is done.
// No job fires after stop returns.
func (d *Dispatcher) stop(ctx context.Context) error {
	d.runMu.Lock()
	wasRunning := d.running
	d.running = false
	d.stopped = true
	loop, fires := d.loop, d.fires
	d.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if err := loop.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Warn("dispatch loop stop", logx.Err(err))
		if ctx.Err() != nil {
			fires.Cancel()
			return ctx.Err()
		}
	}
	if err := fires.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			fires.Cancel()
			d.log.Warn("in-flight firings abandoned", logx.Int64("active", fires.Counters().Active))
			return ctx.Err()
		}
		d.log.Debug("firing supervisor error", logx.Err(err))
	}
	d.log.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		now := d.clock.Now()
		if ids := d.popDue(now); len(ids) > 0 {
			d.fireDue(ctx, now, ids)
			continue
		}

		wakeAt := now.Add(d.poll)
		if next, ok := d.NextWake(); ok && next.Before(wakeAt) {
			wakeAt = next
		}
		t := d.clock.TimerAt(wakeAt)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-d.wakeCh:
			t.Stop()
		case <-t.C():
		}
	}
}

func (d *Dispatcher) fireDue(ctx context.Context, now time.Time, ids []string) {
	for _, j := range d.reg.claimDue(ctx, now, ids) {
		if ctx.Err() != nil {
			return
		}
		j := j
		d.fires.Go0("job.fire", func(fctx context.Context) {
			d.fire(fctx, j)
		})
	}
}

// fire hands one claimed job to the notifier. j.NextRun is the run being fired.
func (d *Dispatcher) fire(ctx context.Context, j job.Job) {
	start := time.Now()
	log := d.log.With(logx.String("job_id", j.ID), logx.String("store", j.StoreAlias))

	ctx = notify.WithJob(ctx, notify.JobInfo{
		ID:          j.ID,
		Store:       j.StoreAlias,
		Cron:        j.Expr.String(),
		ScheduledAt: j.NextRun,
	})
	err := d.callNotifier(ctx, j.Payload)

	ev := eventbus.JobEvent{
		JobID:   j.ID,
		Store:   j.StoreAlias,
		Cron:    j.Expr.String(),
		Message: j.Payload.Message,
	}
	typ := eventbus.JobFired
	if err != nil {
		typ = eventbus.JobFailed
		ev.Err = err.Error()
		log.Warn("job notify failed", logx.Err(err), logx.Duration("dur", time.Since(start)))
	} else {
		log.Debug("job fired", logx.Duration("dur", time.Since(start)))
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Time: d.clock.Now(), Data: ev})
	}
}

// callNotifier turns a notifier panic into an error so one bad firing
// never affects the next.
func (d *Dispatcher) callNotifier(ctx context.Context, p job.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notifier panicked", logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 24)))
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.notifier.Notify(ctx, p.Message, p.Clone().Extra)
}
