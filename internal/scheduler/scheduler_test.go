package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"cronbot/internal/eventbus"
	"cronbot/internal/job"
	"cronbot/internal/jobstore"
	"cronbot/internal/notify"
	"cronbot/pkg/cronexpr"
	logx "cronbot/pkg/logx"
)

var epoch = time.Date(2026, 10, 16, 10, 0, 30, 0, time.UTC)

type firing struct {
	message string
	extra   map[string]any
	info    notify.JobInfo
}

// recorder is a Notifier that records every call and optionally fails.
type recorder struct {
	mu    sync.Mutex
	calls []firing
	ch    chan firing
	fn    func(n int) error
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan firing, 16)}
}

func (r *recorder) Notify(ctx context.Context, message string, extra map[string]any) error {
	info, _ := notify.JobFrom(ctx)
	f := firing{message: message, extra: extra, info: info}
	r.mu.Lock()
	r.calls = append(r.calls, f)
	n := len(r.calls)
	fn := r.fn
	r.mu.Unlock()
	r.ch <- f
	if fn != nil {
		return fn(n)
	}
	return nil
}

func (r *recorder) wait(t *testing.T) firing {
	t.Helper()
	select {
	case f := <-r.ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a firing")
	}
	return firing{}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestService(t *testing.T, n notify.Notifier, bus eventbus.Bus, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	return newTestServiceAt(t, Config{}, epoch, n, bus, opts...)
}

func newTestServiceAt(t *testing.T, cfg Config, start time.Time, n notify.Notifier, bus eventbus.Bus, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clock := newFakeClock(start)
	opts = append([]Option{WithClock(clock)}, opts...)
	s, err := New(cfg, n, logx.Nop(), bus, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, clock
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.JobEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e.Data.(eventbus.JobEvent)
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestAddAndListJob(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, newRecorder(), nil)
	ctx := context.Background()

	j, err := s.AddJob(ctx, "15 1 5 12 6", job.Payload{Message: "test job"}, "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if j.ID == "" || j.StoreAlias != DefaultStore || j.State != job.Active {
		t.Fatalf("unexpected job: %+v", j)
	}
	wantNext := time.Date(2027, 12, 5, 1, 15, 0, 0, time.UTC)
	if !j.NextRun.Equal(wantNext) {
		t.Fatalf("NextRun = %s, want %s", j.NextRun, wantNext)
	}

	list, err := s.ListJobs(ctx, "")
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("listed %d jobs, want 1", len(list))
	}
	got := list[0]
	if got.ID != j.ID || got.Cron != "15 1 5 12 6" || got.Message != "test job" || got.Paused {
		t.Fatalf("unexpected summary: %+v", got)
	}
	line := got.String()
	if !strings.Contains(line, `"15 1 5 12 6"`) || !strings.Contains(line, "2027-12-05 01:15:00") || !strings.HasSuffix(line, "test job") {
		t.Fatalf("unexpected listing line %q", line)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", s.Pending())
	}
}

func TestAddJobRejectsBadExpressions(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, newRecorder(), nil)
	ctx := context.Background()

	tests := []struct {
		expr string
		want error
	}{
		{expr: "* * * *", want: cronexpr.ErrMalformedExpression},
		{expr: "61 * * * *", want: cronexpr.ErrInvalidFieldValue},
		{expr: "a * * * *", want: cronexpr.ErrInvalidFieldSyntax},
		{expr: "0 0 31 2 *", want: cronexpr.ErrNoFutureMatch},
	}
	for _, tt := range tests {
		if _, err := s.AddJob(ctx, tt.expr, job.Payload{Message: "x"}, ""); !errors.Is(err, tt.want) {
			t.Fatalf("AddJob(%q) error = %v, want %v", tt.expr, err, tt.want)
		}
	}
	list, err := s.ListJobs(ctx, "")
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected expressions created %d jobs", len(list))
	}
}

func TestJobFiresAndReschedules(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	s, clock := newTestService(t, rec, nil)
	ctx := context.Background()

	j, err := s.AddJob(ctx, "* * * * *", job.Payload{Message: "ping", Extra: map[string]any{"chat_id": int64(42)}}, "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := j.NextRun
	clock.Advance(first.Sub(clock.Now()))
	f := rec.wait(t)
	if f.message != "ping" || f.extra["chat_id"] != int64(42) {
		t.Fatalf("unexpected firing: %+v", f)
	}
	if f.info.ID != j.ID || f.info.Cron != "* * * * *" || !f.info.ScheduledAt.Equal(first) {
		t.Fatalf("unexpected job info: %+v", f.info)
	}

	got, ok, err := s.GetJob(ctx, j.ID)
	if err != nil || !ok {
		t.Fatalf("GetJob: ok=%v err=%v", ok, err)
	}
	if want := first.Add(time.Minute); !got.NextRun.Equal(want) {
		t.Fatalf("NextRun after firing = %s, want %s", got.NextRun, want)
	}

	clock.Advance(time.Minute)
	rec.wait(t)
	if n := rec.count(); n != 2 {
		t.Fatalf("fired %d times, want 2", n)
	}
}

func TestNotifierFailureDoesNotStopScheduling(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	rec.fn = func(n int) error {
		switch n {
		case 1:
			panic("boom")
		case 2:
			return errors.New("chat unavailable")
		}
		return nil
	}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()

	s, clock := newTestService(t, rec, bus)
	ctx := context.Background()
	if _, err := s.AddJob(ctx, "* * * * *", job.Payload{Message: "tick"}, ""); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Advance(30 * time.Second)
	if ev := waitEvent(t, events, eventbus.JobFailed); !strings.Contains(ev.Err, "boom") {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
	clock.Advance(time.Minute)
	if ev := waitEvent(t, events, eventbus.JobFailed); !strings.Contains(ev.Err, "chat unavailable") {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
	clock.Advance(time.Minute)
	waitEvent(t, events, eventbus.JobFired)
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	s, clock := newTestService(t, rec, nil)
	ctx := context.Background()

	j, err := s.AddJob(ctx, "*/10 * * * *", job.Payload{Message: "ten"}, "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if ok, err := s.PauseJob(ctx, j.ID); !ok || err != nil {
		t.Fatalf("PauseJob: ok=%v err=%v", ok, err)
	}
	if ok, err := s.PauseJob(ctx, j.ID); !ok || err != nil {
		t.Fatalf("second PauseJob: ok=%v err=%v", ok, err)
	}
	list, _ := s.ListJobs(ctx, "")
	if len(list) != 1 || !list[0].Paused || !list[0].NextRun.IsZero() {
		t.Fatalf("paused job listed as %+v", list)
	}
	if !strings.Contains(list[0].String(), " paused ") {
		t.Fatalf("listing line %q does not show paused", list[0].String())
	}
	if s.Pending() != 0 {
		t.Fatalf("paused job still pending")
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("paused job fired")
	}

	if ok, err := s.ResumeJob(ctx, j.ID); !ok || err != nil {
		t.Fatalf("ResumeJob: ok=%v err=%v", ok, err)
	}
	got, _, _ := s.GetJob(ctx, j.ID)
	if !got.NextRun.After(clock.Now()) || got.NextRun.Minute()%10 != 0 {
		t.Fatalf("resumed NextRun = %s, now %s", got.NextRun, clock.Now())
	}
	if ok, err := s.ResumeJob(ctx, j.ID); !ok || err != nil {
		t.Fatalf("second ResumeJob: ok=%v err=%v", ok, err)
	}

	for _, op := range []func(context.Context, string) (bool, error){s.PauseJob, s.ResumeJob, s.RemoveJob} {
		if ok, err := op(ctx, "missing"); ok || err != nil {
			t.Fatalf("op on unknown id: ok=%v err=%v", ok, err)
		}
	}
}

func TestRemoveJob(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, newRecorder(), nil)
	ctx := context.Background()

	keep, _ := s.AddJob(ctx, "0 9 * * *", job.Payload{Message: "keep"}, "")
	drop, _ := s.AddJob(ctx, "0 10 * * *", job.Payload{Message: "drop"}, "")

	if ok, err := s.RemoveJob(ctx, "nope"); ok || err != nil {
		t.Fatalf("RemoveJob(unknown): ok=%v err=%v", ok, err)
	}
	if list, _ := s.ListJobs(ctx, ""); len(list) != 2 {
		t.Fatalf("unknown remove changed the list: %d jobs", len(list))
	}

	if ok, err := s.RemoveJob(ctx, drop.ID); !ok || err != nil {
		t.Fatalf("RemoveJob: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.RemoveJob(ctx, drop.ID); ok {
		t.Fatalf("second RemoveJob reported true")
	}
	list, _ := s.ListJobs(ctx, "")
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Fatalf("unexpected list after remove: %+v", list)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", s.Pending())
	}
}

func TestStores(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, newRecorder(), nil)
	ctx := context.Background()

	if !s.AddStore(ctx, "archive", jobstore.Config{Driver: "file", Path: t.TempDir() + "/archive.json"}) {
		t.Fatalf("AddStore(archive) failed")
	}
	if s.AddStore(ctx, "archive", jobstore.Config{}) {
		t.Fatalf("duplicate alias accepted")
	}
	if s.AddStore(ctx, " ", jobstore.Config{}) {
		t.Fatalf("empty alias accepted")
	}
	if s.AddStore(ctx, "broken", jobstore.Config{Driver: "sqlite"}) {
		t.Fatalf("invalid config accepted")
	}
	if s.AddStore(ctx, "weird", jobstore.Config{Driver: "etcd"}) {
		t.Fatalf("unknown driver accepted")
	}
	if got := s.Stores(); len(got) != 2 || got[0] != DefaultStore || got[1] != "archive" {
		t.Fatalf("Stores = %v", got)
	}

	a, _ := s.AddJob(ctx, "0 9 * * *", job.Payload{Message: "a"}, "")
	b, err := s.AddJob(ctx, "0 10 * * *", job.Payload{Message: "b"}, "archive")
	if err != nil {
		t.Fatalf("AddJob(archive): %v", err)
	}
	if _, err := s.AddJob(ctx, "0 10 * * *", job.Payload{Message: "c"}, "nowhere"); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("AddJob(unknown store) error = %v", err)
	}

	archived, err := s.ListJobs(ctx, "archive")
	if err != nil || len(archived) != 1 || archived[0].ID != b.ID || archived[0].Store != "archive" {
		t.Fatalf("ListJobs(archive) = %+v, %v", archived, err)
	}
	all, _ := s.ListJobs(ctx, "")
	if len(all) != 2 || all[0].ID != a.ID || all[1].ID != b.ID {
		t.Fatalf("ListJobs(all) = %+v", all)
	}
	if _, err := s.ListJobs(ctx, "nowhere"); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("ListJobs(unknown) error = %v", err)
	}

	// Operations by id find jobs in any store.
	if ok, err := s.PauseJob(ctx, b.ID); !ok || err != nil {
		t.Fatalf("PauseJob(archive job): ok=%v err=%v", ok, err)
	}
}

func TestLoadExistingJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := jobstore.NewMemory()

	put := func(j job.Job) {
		if err := st.Put(ctx, j); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	put(job.Job{ID: "overdue", Expr: cronexpr.MustParse("0 * * * *"), State: job.Active, NextRun: epoch.Add(-48 * time.Hour), Payload: job.Payload{Message: "late"}})
	put(job.Job{ID: "future", Expr: cronexpr.MustParse("0 12 * * *"), State: job.Active, NextRun: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)})
	put(job.Job{ID: "paused", Expr: cronexpr.MustParse("0 12 * * *"), State: job.Paused})
	put(job.Job{ID: "impossible", Expr: cronexpr.MustParse("0 0 31 2 *"), State: job.Active, NextRun: epoch.Add(-time.Hour)})

	rec := newRecorder()
	s, _ := newTestService(t, rec, nil, WithDefaultStore(st))

	got, ok, err := s.GetJob(ctx, "overdue")
	if err != nil || !ok {
		t.Fatalf("GetJob(overdue): ok=%v err=%v", ok, err)
	}
	if want := time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC); !got.NextRun.Equal(want) {
		t.Fatalf("overdue NextRun = %s, want %s", got.NextRun, want)
	}
	if got.StoreAlias != DefaultStore {
		t.Fatalf("StoreAlias = %q", got.StoreAlias)
	}
	if _, ok, _ := s.GetJob(ctx, "impossible"); ok {
		t.Fatalf("unsatisfiable job was loaded")
	}
	if _, err := st.Get(ctx, "impossible"); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("unsatisfiable job still stored: %v", err)
	}
	if s.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", s.Pending())
	}
	if rec.count() != 0 {
		t.Fatalf("missed runs were fired on load")
	}
}

func TestStopWaitsForInFlightFirings(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	release := make(chan struct{})
	rec.fn = func(int) error {
		<-release
		return nil
	}
	s, clock := newTestService(t, rec, nil)
	ctx := context.Background()

	if _, err := s.AddJob(ctx, "* * * * *", job.Payload{Message: "slow"}, ""); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	clock.Advance(30 * time.Second)
	rec.wait(t)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()
	select {
	case err := <-stopped:
		t.Fatalf("Stop returned before firing finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}

	if _, err := s.AddJob(ctx, "* * * * *", job.Payload{}, ""); !errors.Is(err, ErrStopped) {
		t.Fatalf("AddJob after Stop error = %v", err)
	}
	if _, err := s.ListJobs(ctx, ""); !errors.Is(err, ErrStopped) {
		t.Fatalf("ListJobs after Stop error = %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start after Stop error = %v", err)
	}
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}
}

func TestStopTimeoutCancelsFirings(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	s, clock := newTestService(t, notify.Func(func(ctx context.Context, msg string, extra map[string]any) error {
		_ = rec.Notify(ctx, msg, extra)
		<-ctx.Done()
		return ctx.Err()
	}), nil)
	ctx := context.Background()

	if _, err := s.AddJob(ctx, "* * * * *", job.Payload{Message: "stuck"}, ""); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(30 * time.Second)
	rec.wait(t)

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := s.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop error = %v, want deadline exceeded", err)
	}
}

func TestNewRequiresNotifier(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, nil, logx.Nop(), nil); err == nil {
		t.Fatalf("expected error for nil notifier")
	}
	if _, err := New(Config{DefaultStore: jobstore.Config{Driver: "redis"}}, newRecorder(), logx.Nop(), nil); !errors.Is(err, jobstore.ErrInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestAddWakesSleepingDispatcher(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	s, clock := newTestServiceAt(t, Config{PollInterval: time.Hour}, epoch, rec, nil)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The loop is asleep once it holds its poll timer.
	clock.waitTimers(t, 1)

	j, err := s.AddJob(ctx, "* * * * *", job.Payload{Message: "early"}, "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	clock.Advance(j.NextRun.Sub(clock.Now()))
	if f := rec.wait(t); f.message != "early" {
		t.Fatalf("unexpected firing: %+v", f)
	}
}

func TestScheduleAcrossDSTGap(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// 2026-03-08 01:30 EST; clocks jump from 02:00 EST to 03:00 EDT.
	start := time.Date(2026, 3, 8, 6, 30, 0, 0, time.UTC).In(ny)
	rec := newRecorder()
	s, clock := newTestServiceAt(t, Config{}, start, rec, nil)
	ctx := context.Background()

	daily, err := s.AddJob(ctx, "30 2 * * *", job.Payload{Message: "skipped today"}, "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if want := time.Date(2026, 3, 9, 6, 30, 0, 0, time.UTC); !daily.NextRun.Equal(want) {
		t.Fatalf("NextRun = %s, want %s", daily.NextRun, want.In(ny))
	}
	if _, err := s.ListJobs(ctx, ""); err != nil {
		t.Fatalf("ListJobs: %v", err)
	}

	hourly, err := s.AddJob(ctx, "0 * * * *", job.Payload{Message: "hourly"}, "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if want := time.Date(2026, 3, 8, 7, 0, 0, 0, time.UTC); !hourly.NextRun.Equal(want) {
		t.Fatalf("NextRun = %s, want %s", hourly.NextRun, want.In(ny))
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Advance(30 * time.Minute)
	if f := rec.wait(t); f.message != "hourly" {
		t.Fatalf("unexpected firing: %+v", f)
	}
	got, ok, err := s.GetJob(ctx, hourly.ID)
	if err != nil || !ok {
		t.Fatalf("GetJob: ok=%v err=%v", ok, err)
	}
	if want := time.Date(2026, 3, 8, 8, 0, 0, 0, time.UTC); !got.NextRun.Equal(want) {
		t.Fatalf("NextRun after firing = %s, want %s", got.NextRun, want.In(ny))
	}
}
