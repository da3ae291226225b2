package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/job"
	"cronbot/internal/jobstore"
	"cronbot/internal/notify"
	logx "cronbot/pkg/logx"
)

const storeOpenTimeout = 15 * time.Second

// Service is the public entry point: a Registry plus its Dispatcher.
type Service struct {
	log  logx.Logger
	cfg  Config
	reg  *Registry
	disp *Dispatcher
}

type options struct {
	clock        Clock
	defaultStore jobstore.Store
}

type Option func(*options)

// WithClock replaces the wall clock (tests).
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDefaultStore uses st as the "default" store instead of opening
// Config.DefaultStore. The Service takes ownership of st.
func WithDefaultStore(st jobstore.Store) Option {
	return func(o *options) { o.defaultStore = st }
}

// New builds a Service. n receives every firing; bus may be nil.
//
// Jobs already held by the default store are loaded and rescheduled.
func New(cfg Config, n notify.Notifier, log logx.Logger, bus eventbus.Bus, opts ...Option) (*Service, error) {
	if n == nil {
		return nil, errors.New("scheduler: notifier is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "scheduler"))
	cfg = cfg.withDefaults()

	o := options{clock: SystemClock{}}
	for _, fn := range opts {
		fn(&o)
	}

	disp := newDispatcher(log, bus, o.clock, cfg.PollInterval, n)
	reg := newRegistry(log, bus, o.clock, disp)
	disp.reg = reg

	ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
	defer cancel()

	st := o.defaultStore
	if st == nil {
		var err error
		st, err = jobstore.Open(ctx, cfg.DefaultStore, log.With(logx.String("store", DefaultStore)))
		if err != nil {
			return nil, fmt.Errorf("open default store: %w", err)
		}
	}
	if err := reg.attach(ctx, DefaultStore, st); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load default store: %w", err)
	}

	return &Service{log: log, cfg: cfg, reg: reg, disp: disp}, nil
}

// Start launches the dispatch loop. It is a no-op if already running and
// fails with ErrStopped after Stop.
func (s *Service) Start(ctx context.Context) error {
	return s.disp.start(ctx)
}

// Stop ends the dispatch loop, waits for in-flight firings until ctx is
// done and closes every store.
func (s *Service) Stop(ctx context.Context) error {
	derr := s.disp.stop(ctx)
	cerr := s.reg.close()
	return errors.Join(derr, cerr)
}

func (s *Service) AddJob(ctx context.Context, cronText string, payload job.Payload, alias string) (job.Job, error) {
	return s.reg.AddJob(ctx, cronText, payload, alias)
}

func (s *Service) GetJob(ctx context.Context, id string) (job.Job, bool, error) {
	return s.reg.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, alias string) ([]Summary, error) {
	return s.reg.ListJobs(ctx, alias)
}

func (s *Service) RemoveJob(ctx context.Context, id string) (bool, error) {
	return s.reg.RemoveJob(ctx, id)
}

func (s *Service) PauseJob(ctx context.Context, id string) (bool, error) {
	return s.reg.PauseJob(ctx, id)
}

func (s *Service) ResumeJob(ctx context.Context, id string) (bool, error) {
	return s.reg.ResumeJob(ctx, id)
}

func (s *Service) AddStore(ctx context.Context, alias string, cfg jobstore.Config) bool {
	return s.reg.AddStore(ctx, alias, cfg)
}

// Stores returns the registered store aliases, default first.
func (s *Service) Stores() []string { return s.reg.Stores() }

// Pending reports how many active jobs are waiting to fire.
func (s *Service) Pending() int { return s.disp.Pending() }
