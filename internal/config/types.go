package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cronbot/internal/jobstore"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	Scheduler SchedulerConfig `json:"scheduler"`

	// Notifier may be omitted; it then defaults to enabled with runtime defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Events   EventsConfig    `json:"events,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id (as a string, e.g. "-100123") that receives
	// forwarded warnings and firings without a chat of their own.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// GroupLogChatID parses GroupLog. An empty value yields 0.
func (t TelegramConfig) GroupLogChatID() (int64, error) {
	s := strings.TrimSpace(t.GroupLog)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", t.GroupLog)
	}
	return id, nil
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the job scheduler.
//
// Example:
//
//	"scheduler": {
//	  "enabled": true,
//	  "poll_interval": "1m",
//	  "default_store": { "driver": "sqlite", "path": "./data/jobs.db" },
//	  "stores": { "shared": { "driver": "redis", "addr": "127.0.0.1:6379" } }
//	}
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// PollInterval caps how long the dispatcher sleeps between checks.
	PollInterval string                 `json:"poll_interval,omitempty"`
	DefaultStore StoreConfig            `json:"default_store"`
	Stores       map[string]StoreConfig `json:"stores,omitempty"`
}

// StoreConfig selects a job store driver: memory, file, sqlite, redis or postgres.
type StoreConfig struct {
	Driver   string `json:"driver"`
	Path     string `json:"path,omitempty"`
	DSN      string `json:"dsn,omitempty"`
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Table    string `json:"table,omitempty"`
	// BusyTimeout is a Go duration string (sqlite).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// Jobstore converts c into the driver config; path names the section for errors.
func (c StoreConfig) Jobstore(path string) (jobstore.Config, error) {
	busy, err := ParseDurationField(path+".busy_timeout", c.BusyTimeout)
	if err != nil {
		return jobstore.Config{}, err
	}
	out := jobstore.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		DSN:         c.DSN,
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		Prefix:      c.Prefix,
		Table:       c.Table,
		BusyTimeout: busy,
	}
	if err := out.Validate(); err != nil {
		return jobstore.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	// Prefix is prepended to every firing sent to a chat.
	Prefix string `json:"prefix,omitempty"`
}

// DefaultNotifier is used when the notifier section is omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:       true,
		Workers:       2,
		QueueSize:     512,
		RatePerSec:    3,
		RetryMax:      3,
		RetryBase:     "500ms",
		RetryMaxDelay: "10s",
	}
}

// NotifierOrDefault returns the notifier section or its defaults.
func (c *Config) NotifierOrDefault() NotifierConfig {
	if c.Notifier == nil {
		return DefaultNotifier()
	}
	return *c.Notifier
}

// EventsConfig controls how firings travel from the scheduler to the chat.
// With WatermillTopic set, firings are published on an in-process watermill
// topic and relayed to the chat by a subscriber.
type EventsConfig struct {
	WatermillTopic string `json:"watermill_topic,omitempty"`
	Buffer         int    `json:"buffer,omitempty"`
}

// Validate checks values that JSON decoding cannot.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	durations := map[string]time.Duration{}
	for _, f := range c.durationFields() {
		d, err := f.check()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		durations[f.path] = d
	}
	if base, maxDelay := durations["notifier.retry_base"], durations["notifier.retry_max_delay"]; base > 0 && maxDelay > 0 && base > maxDelay {
		errs = append(errs, fmt.Errorf("notifier.retry_base (%s) exceeds notifier.retry_max_delay (%s)", base, maxDelay))
	}
	if _, err := c.Telegram.GroupLogChatID(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scheduler.DefaultStore.Jobstore("scheduler.default_store"); err != nil {
		errs = append(errs, err)
	}
	for alias, st := range c.Scheduler.Stores {
		if strings.TrimSpace(alias) == "" || alias == "default" {
			errs = append(errs, fmt.Errorf("scheduler.stores: invalid alias %q", alias))
			continue
		}
		if _, err := st.Jobstore("scheduler.stores." + alias); err != nil {
			errs = append(errs, err)
		}
	}
	n := c.NotifierOrDefault()
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		errs = append(errs, errors.New("notifier: counts must be >= 0"))
	}
	if c.Events.Buffer < 0 {
		errs = append(errs, errors.New("events.buffer must be >= 0"))
	}
	return errors.Join(errs...)
}
