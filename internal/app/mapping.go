package app

import (
	"sort"

	"cronbot/internal/config"
	"cronbot/internal/jobstore"
	"cronbot/internal/notifier"
	"cronbot/internal/scheduler"
	logx "cronbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	chatID, _ := cfg.Telegram.GroupLogChatID()
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.NotifierOrDefault()
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, scheduler.DefaultPollInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	def, err := cfg.Scheduler.DefaultStore.Jobstore("scheduler.default_store")
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{PollInterval: poll, DefaultStore: def}, nil
}

// namedStore is one extra store from scheduler.stores.
type namedStore struct {
	alias string
	cfg   jobstore.Config
}

// mapStores returns the extra stores sorted by alias, restricted to only
// when it is non-nil.
func mapStores(cfg *config.Config, only []string) ([]namedStore, error) {
	aliases := only
	if aliases == nil {
		for alias := range cfg.Scheduler.Stores {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
	}
	out := make([]namedStore, 0, len(aliases))
	for _, alias := range aliases {
		sc, ok := cfg.Scheduler.Stores[alias]
		if !ok {
			continue
		}
		jc, err := sc.Jobstore("scheduler.stores." + alias)
		if err != nil {
			return nil, err
		}
		out = append(out, namedStore{alias: alias, cfg: jc})
	}
	return out, nil
}
