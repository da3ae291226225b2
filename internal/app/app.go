package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/coreos/go-systemd/v22/daemon"

	"cronbot/internal/command"
	"cronbot/internal/config"
	"cronbot/internal/eventbus"
	"cronbot/internal/notifier"
	"cronbot/internal/notify"
	rtsup "cronbot/internal/runtime/supervisor"
	"cronbot/internal/scheduler"
	kit "cronbot/internal/transport"
	telegram "cronbot/internal/transport/telegram/adapter"
	logx "cronbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter kit.Adapter
	notif   *notifier.Service
	sched   *scheduler.Service
	router  *command.Router

	// pubsub carries firings to the chat relay when events.watermill_topic is set.
	pubsub *gochannel.GoChannel
	chat   notify.Chat
	topic  string

	msgs chan kit.Message
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	bus := eventbus.New()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, log, bus)

	groupLog, _ := cfg.Telegram.GroupLogChatID()
	chat := notify.Chat{
		Out:      notifSvc,
		Prefix:   cfg.NotifierOrDefault().Prefix,
		Fallback: kit.ChatTarget{ChatID: groupLog},
	}

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		notif:   notifSvc,
		chat:    chat,
		msgs:    make(chan kit.Message, 256),
	}

	// Firings go straight to the chat, or through a watermill topic that a
	// relay drains into the chat. Either way they are mirrored on the bus.
	var firing notify.Notifier = chat
	if topic := strings.TrimSpace(cfg.Events.WatermillTopic); topic != "" {
		buf := int64(cfg.Events.Buffer)
		if buf <= 0 {
			buf = 64
		}
		a.pubsub = notify.NewGoChannel(log, buf)
		a.topic = topic
		firing = notify.Watermill{Pub: a.pubsub, Topic: topic}
	}

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(scfg, notify.Multi{firing, notify.Bus{B: bus}}, log, bus)
	if err != nil {
		return nil, err
	}
	a.sched = sched

	stores, err := mapStores(cfg, nil)
	if err != nil {
		return nil, err
	}
	a.addStores(context.Background(), stores)

	a.router = command.NewRouter(log, ad, cfg.Telegram.OwnerUserIDs)
	command.RegisterCron(a.router, sched)

	return a, nil
}

func (a *App) addStores(ctx context.Context, stores []namedStore) {
	for _, st := range stores {
		sctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if !a.sched.AddStore(sctx, st.alias, st.cfg) {
			a.log.Warn("job store not added", logx.String("store", st.alias))
		}
		cancel()
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		_, err := mapStores(cfg, nil)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.msgs); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}

	if a.pubsub != nil {
		msgs, err := a.pubsub.Subscribe(a.sup.Context(), a.topic)
		if err != nil {
			return fmt.Errorf("subscribe %q: %w", a.topic, err)
		}
		a.sup.Go("notify.relay", func(c context.Context) error {
			if err := notify.Relay(c, msgs, a.chat, a.log); err != nil && c.Err() == nil {
				return err
			}
			return nil
		})
	}

	if a.cfgm.Get().Scheduler.Enabled {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			return err
		}
	} else {
		a.log.Warn("scheduler disabled; jobs are kept but will not fire")
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.msgs)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Keep this debug-level to avoid noise for every-minute jobs.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started", logx.Any("stores", a.sched.Stores()), logx.Int("pending_jobs", a.sched.Pending()))
	return nil
}

// applyConfig applies the hot-reloadable parts of newCfg.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, fields, added := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		a.log.Warn("telegram config changed; restart required for changes to take effect")
	}
	if oldCfg.Scheduler.DefaultStore != newCfg.Scheduler.DefaultStore || oldCfg.Scheduler.PollInterval != newCfg.Scheduler.PollInterval {
		a.log.Warn("scheduler default store or poll interval changed; restart required")
	}
	if oldCfg.Events != newCfg.Events || oldCfg.NotifierOrDefault().Prefix != newCfg.NotifierOrDefault().Prefix {
		a.log.Warn("firing route changed; restart required")
	}
	if !oldCfg.Scheduler.Enabled && newCfg.Scheduler.Enabled {
		if err := a.sched.Start(ctx); err != nil {
			a.log.Warn("scheduler start failed", logx.Err(err))
		} else {
			a.log.Info("scheduler enabled via config")
		}
	} else if oldCfg.Scheduler.Enabled && !newCfg.Scheduler.Enabled {
		a.log.Warn("scheduler cannot be disabled at runtime; restart required")
	}

	if len(added) > 0 {
		stores, err := mapStores(newCfg, added)
		if err != nil {
			a.log.Warn("invalid store config; not added", logx.Err(err))
		} else {
			a.addStores(ctx, stores)
		}
	}

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case prev && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !prev && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Stop the scheduler before cancelling the app context so in-flight
	// firings can still reach the notifier.
	a.step(ctx, "scheduler", 5*time.Second, a.sched.Stop)

	a.sup.Cancel()

	if a.pubsub != nil {
		a.step(ctx, "pubsub", time.Second, func(context.Context) error { return a.pubsub.Close() })
	}
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
