package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	logx "cronbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured fields for logging (never includes tokens, DSNs or
// passwords), and (3) the store aliases that were added.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	fields := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!slices.Equal(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	added := addedStores(oldCfg.Scheduler.Stores, newCfg.Scheduler.Stores)
	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.PollInterval) != strings.TrimSpace(newCfg.Scheduler.PollInterval) ||
		oldCfg.Scheduler.DefaultStore != newCfg.Scheduler.DefaultStore ||
		!reflect.DeepEqual(oldCfg.Scheduler.Stores, newCfg.Scheduler.Stores) {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.String("scheduler.default_driver", newCfg.Scheduler.DefaultStore.Driver),
			logx.Int("scheduler.store_count", len(newCfg.Scheduler.Stores)),
			logx.Int("scheduler.stores_added", len(added)),
		)
	}

	if oldN, newN := oldCfg.NotifierOrDefault(), newCfg.NotifierOrDefault(); oldN != newN {
		changed = append(changed, "notifier")
		fields = append(fields,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
		)
	}

	if oldCfg.Events != newCfg.Events {
		changed = append(changed, "events")
		fields = append(fields, logx.String("events.watermill_topic", newCfg.Events.WatermillTopic))
	}

	sort.Strings(changed)
	return changed, fields, added
}

func addedStores(oldM, newM map[string]StoreConfig) []string {
	var out []string
	for alias := range newM {
		if _, ok := oldM[alias]; !ok {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}
