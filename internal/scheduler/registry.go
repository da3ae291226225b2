package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cronbot/internal/eventbus"
	"cronbot/internal/job"
	"cronbot/internal/jobstore"
	"cronbot/pkg/cronexpr"
	logx "cronbot/pkg/logx"
)

// wakeTarget receives next-run times. Implemented by the Dispatcher.
type wakeTarget interface {
	schedule(id string, at time.Time)
	unschedule(id string)
}

// Registry owns the live job table.
type Registry struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	clock Clock
	wake  wakeTarget

	stores map[string]jobstore.Store
	order  []string          // aliases in registration order
	index  map[string]string // job id -> store alias
	closed bool
}

func newRegistry(log logx.Logger, bus eventbus.Bus, clock Clock, wake wakeTarget) *Registry {
	return &Registry{
		log:    log,
		bus:    bus,
		clock:  clock,
		wake:   wake,
		stores: map[string]jobstore.Store{},
		index:  map[string]string{},
	}
}

// AddJob parses cronText and registers an active job in the store named alias
// ("" selects the default store).
//
// Parse errors are returned unchanged and create nothing. An expression that
// can never fire is rejected with an error wrapping cronexpr.ErrNoFutureMatch.
func (r *Registry) AddJob(ctx context.Context, cronText string, payload job.Payload, alias string) (job.Job, error) {
	expr, err := cronexpr.Parse(cronText)
	if err != nil {
		return job.Job{}, err
	}
	alias = normalizeAlias(alias)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return job.Job{}, ErrStopped
	}
	st, ok := r.stores[alias]
	if !ok {
		r.mu.Unlock()
		return job.Job{}, fmt.Errorf("%w: %q", ErrStoreNotFound, alias)
	}

	now := r.clock.Now()
	next, err := expr.Next(now)
	if err != nil {
		r.mu.Unlock()
		return job.Job{}, err
	}

	j := job.Job{
		ID:         r.newIDLocked(),
		Expr:       expr,
		Payload:    payload,
		StoreAlias: alias,
		State:      job.Active,
		NextRun:    next,
		CreatedAt:  now,
	}
	j = j.Clone()
	if err := st.Put(ctx, j); err != nil {
		r.mu.Unlock()
		return job.Job{}, fmt.Errorf("store %q: put job: %w", alias, err)
	}
	r.index[j.ID] = alias
	r.wake.schedule(j.ID, next)
	r.mu.Unlock()

	r.log.Info("job added", logx.String("job_id", j.ID), logx.String("store", alias), logx.String("cron", expr.String()), logx.Time("next_run", next))
	r.publish(eventbus.JobAdded, j, nil)
	return j.Clone(), nil
}

// newIDLocked returns a uuid not yet present in the index.
func (r *Registry) newIDLocked() string {
	for {
		id := uuid.NewString()
		if _, taken := r.index[id]; !taken {
			return id
		}
	}
}

// GetJob returns a copy of the job with the given id.
func (r *Registry) GetJob(ctx context.Context, id string) (job.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx, id)
}

func (r *Registry) getLocked(ctx context.Context, id string) (job.Job, bool, error) {
	if r.closed {
		return job.Job{}, false, ErrStopped
	}
	alias, ok := r.index[id]
	if !ok {
		return job.Job{}, false, nil
	}
	j, err := r.stores[alias].Get(ctx, id)
	if errors.Is(err, jobstore.ErrNotFound) {
		// The store lost the record behind our back.
		delete(r.index, id)
		r.wake.unschedule(id)
		return job.Job{}, false, nil
	}
	if err != nil {
		return job.Job{}, false, fmt.Errorf("store %q: get job: %w", alias, err)
	}
	return j, true, nil
}

// ListJobs returns a consistent snapshot of the jobs in store alias, or of
// every store (in registration order) when alias is "".
func (r *Registry) ListJobs(ctx context.Context, alias string) ([]Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStopped
	}

	aliases := r.order
	if strings.TrimSpace(alias) != "" {
		alias = normalizeAlias(alias)
		if _, ok := r.stores[alias]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrStoreNotFound, alias)
		}
		aliases = []string{alias}
	}

	var out []Summary
	for _, a := range aliases {
		jobs, err := r.stores[a].List(ctx)
		if err != nil {
			return nil, fmt.Errorf("store %q: list jobs: %w", a, err)
		}
		for _, j := range jobs {
			out = append(out, summarize(j))
		}
	}
	return out, nil
}

// RemoveJob deletes the job. It reports false, with a nil error, when no
// job has that id.
func (r *Registry) RemoveJob(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	j, ok, err := r.getLocked(ctx, id)
	if err != nil || !ok {
		r.mu.Unlock()
		return false, err
	}
	alias := j.StoreAlias
	existed, err := r.stores[alias].Delete(ctx, id)
	if err != nil {
		r.mu.Unlock()
		return false, fmt.Errorf("store %q: delete job: %w", alias, err)
	}
	delete(r.index, id)
	r.wake.unschedule(id)
	r.mu.Unlock()

	if !existed {
		return false, nil
	}
	r.log.Info("job removed", logx.String("job_id", id), logx.String("store", alias))
	r.publish(eventbus.JobRemoved, j, nil)
	return true, nil
}

// PauseJob clears the next run and stops the job from firing. Pausing a
// paused job is a no-op. It reports whether the job exists.
func (r *Registry) PauseJob(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	j, ok, err := r.getLocked(ctx, id)
	if err != nil || !ok {
		r.mu.Unlock()
		return false, err
	}
	if j.State == job.Paused {
		r.mu.Unlock()
		return true, nil
	}
	j.State = job.Paused
	j.NextRun = time.Time{}
	if err := r.stores[j.StoreAlias].Put(ctx, j); err != nil {
		r.mu.Unlock()
		return false, fmt.Errorf("store %q: put job: %w", j.StoreAlias, err)
	}
	r.wake.unschedule(id)
	r.mu.Unlock()

	r.log.Info("job paused", logx.String("job_id", id))
	r.publish(eventbus.JobPaused, j, nil)
	return true, nil
}

// ResumeJob reactivates a paused job with a next run computed from now, so
// runs missed while paused are skipped. Resuming an active job is a no-op.
// It reports whether the job exists.
func (r *Registry) ResumeJob(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	j, ok, err := r.getLocked(ctx, id)
	if err != nil || !ok {
		r.mu.Unlock()
		return false, err
	}
	if j.State == job.Active {
		r.mu.Unlock()
		return true, nil
	}
	next, err := j.Expr.Next(r.clock.Now())
	if err != nil {
		r.expireLocked(ctx, j)
		r.mu.Unlock()
		r.publish(eventbus.JobExpired, j, err)
		return false, err
	}
	j.State = job.Active
	j.NextRun = next
	if err := r.stores[j.StoreAlias].Put(ctx, j); err != nil {
		r.mu.Unlock()
		return false, fmt.Errorf("store %q: put job: %w", j.StoreAlias, err)
	}
	r.wake.schedule(id, next)
	r.mu.Unlock()

	r.log.Info("job resumed", logx.String("job_id", id), logx.Time("next_run", next))
	r.publish(eventbus.JobResumed, j, nil)
	return true, nil
}

// AddStore opens cfg and registers it under alias. Duplicate aliases and
// invalid configs are logged and reported as false; nothing is registered.
func (r *Registry) AddStore(ctx context.Context, alias string, cfg jobstore.Config) bool {
	alias = strings.TrimSpace(alias)
	log := r.log.With(logx.String("store", alias))
	if alias == "" {
		log.Warn("add store rejected: empty alias")
		return false
	}

	r.mu.Lock()
	_, exists := r.stores[alias]
	closed := r.closed
	r.mu.Unlock()
	if closed {
		log.Warn("add store rejected", logx.Err(ErrStopped))
		return false
	}
	if exists {
		log.Warn("add store rejected", logx.Err(ErrStoreExists))
		return false
	}

	st, err := jobstore.Open(ctx, cfg, log)
	if err != nil {
		log.Warn("add store rejected", logx.String("driver", cfg.NormalizedDriver()), logx.Err(err))
		return false
	}
	if err := r.attach(ctx, alias, st); err != nil {
		_ = st.Close()
		log.Warn("add store rejected", logx.Err(err))
		return false
	}
	log.Info("store added", logx.String("driver", cfg.NormalizedDriver()))
	return true
}

// attach registers an opened store and schedules the jobs it already holds.
func (r *Registry) attach(ctx context.Context, alias string, st jobstore.Store) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrStopped
	}
	if _, exists := r.stores[alias]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrStoreExists, alias)
	}
	jobs, err := st.List(ctx)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("list jobs: %w", err)
	}
	r.stores[alias] = st
	r.order = append(r.order, alias)

	now := r.clock.Now()
	var loaded, expired []job.Job
	for _, j := range jobs {
		if owner, dup := r.index[j.ID]; dup {
			r.log.Warn("job id already owned by another store; skipped", logx.String("job_id", j.ID), logx.String("store", alias), logx.String("owner", owner))
			continue
		}
		r.index[j.ID] = alias
		dirty := j.StoreAlias != alias
		j.StoreAlias = alias

		if j.State == job.Active && !j.NextRun.After(now) {
			next, err := j.Expr.Next(now)
			if err != nil {
				r.expireLocked(ctx, j)
				expired = append(expired, j)
				continue
			}
			j.NextRun = next
			dirty = true
		}
		if dirty {
			if err := st.Put(ctx, j); err != nil {
				r.log.Warn("rescheduled job not persisted", logx.String("job_id", j.ID), logx.Err(err))
			}
		}
		if j.State == job.Active {
			r.wake.schedule(j.ID, j.NextRun)
		}
		loaded = append(loaded, j)
	}
	r.mu.Unlock()

	if len(jobs) > 0 {
		r.log.Info("store jobs loaded", logx.String("store", alias), logx.Int("jobs", len(loaded)), logx.Int("expired", len(expired)))
	}
	for _, j := range expired {
		r.publish(eventbus.JobExpired, j, cronexpr.ErrNoFutureMatch)
	}
	return nil
}

// claimDue takes the jobs in ids that are still active and due at now,
// persists their next run and returns the snapshots to fire. A job whose
// expression has no further match is removed but still fired this once.
func (r *Registry) claimDue(ctx context.Context, now time.Time, ids []string) []job.Job {
	var fire, expired []job.Job

	r.mu.Lock()
	for _, id := range ids {
		j, ok, err := r.getLocked(ctx, id)
		if err != nil {
			r.log.Warn("due job unreadable", logx.String("job_id", id), logx.Err(err))
			continue
		}
		if !ok || j.State != job.Active {
			continue
		}
		if j.NextRun.After(now) {
			// Rescheduled since it was queued.
			r.wake.schedule(id, j.NextRun)
			continue
		}
		fire = append(fire, j.Clone())

		next, err := j.Expr.Next(now)
		if err != nil {
			r.expireLocked(ctx, j)
			expired = append(expired, j)
			continue
		}
		j.NextRun = next
		if err := r.stores[j.StoreAlias].Put(ctx, j); err != nil {
			r.log.Warn("next run not persisted", logx.String("job_id", id), logx.Err(err))
		}
		r.wake.schedule(id, next)
	}
	r.mu.Unlock()

	for _, j := range expired {
		r.log.Warn("job has no future run; removed", logx.String("job_id", j.ID), logx.String("cron", j.Expr.String()))
		r.publish(eventbus.JobExpired, j, cronexpr.ErrNoFutureMatch)
	}
	return fire
}

func (r *Registry) expireLocked(ctx context.Context, j job.Job) {
	if _, err := r.stores[j.StoreAlias].Delete(ctx, j.ID); err != nil {
		r.log.Warn("expired job not deleted", logx.String("job_id", j.ID), logx.Err(err))
	}
	delete(r.index, j.ID)
	r.wake.unschedule(j.ID)
}

// Stores returns the registered aliases in registration order.
func (r *Registry) Stores() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// close closes every store. Further mutations fail with ErrStopped.
func (r *Registry) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for _, alias := range r.order {
		if err := r.stores[alias].Close(); err != nil {
			errs = append(errs, fmt.Errorf("store %q: %w", alias, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) publish(typ string, j job.Job, err error) {
	if r.bus == nil {
		return
	}
	ev := eventbus.JobEvent{
		JobID:   j.ID,
		Store:   j.StoreAlias,
		Message: j.Payload.Message,
		NextRun: j.NextRun,
	}
	if !j.Expr.IsZero() {
		ev.Cron = j.Expr.String()
	}
	if err != nil {
		ev.Err = err.Error()
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: r.clock.Now(), Data: ev})
}

func normalizeAlias(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return DefaultStore
	}
	return alias
}
