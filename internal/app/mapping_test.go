package app

import (
	"os"
	"syscall"
	"testing"
	"time"

	"cronbot/internal/config"
	"cronbot/internal/scheduler"
)

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.DefaultStore = config.StoreConfig{Driver: "memory"}

	got, err := mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if got.PollInterval != scheduler.DefaultPollInterval {
		t.Fatalf("poll interval = %s, want default", got.PollInterval)
	}
	if got.DefaultStore.Driver != "memory" {
		t.Fatalf("default store driver = %q", got.DefaultStore.Driver)
	}

	cfg.Scheduler.PollInterval = "15s"
	got, err = mapSchedulerConfig(cfg)
	if err != nil || got.PollInterval != 15*time.Second {
		t.Fatalf("poll interval = %s err=%v, want 15s", got.PollInterval, err)
	}

	cfg.Scheduler.PollInterval = "soon"
	if _, err := mapSchedulerConfig(cfg); err == nil {
		t.Fatalf("expected error for bad poll interval")
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if !got.Enabled || got.RetryBase != 500*time.Millisecond || got.RetryMaxDelay != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", got)
	}

	n := config.DefaultNotifier()
	n.RetryBase = "fast"
	if _, err := mapNotifierConfig(&config.Config{Notifier: &n}); err == nil {
		t.Fatalf("expected error for bad retry_base")
	}
}

func TestMapStores(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.Stores = map[string]config.StoreConfig{
		"ops":     {Driver: "file", Path: t.TempDir() + "/ops.json"},
		"archive": {Driver: "memory"},
	}

	all, err := mapStores(cfg, nil)
	if err != nil {
		t.Fatalf("mapStores: %v", err)
	}
	if len(all) != 2 || all[0].alias != "archive" || all[1].alias != "ops" {
		t.Fatalf("stores not sorted by alias: %+v", all)
	}

	only, err := mapStores(cfg, []string{"ops", "missing"})
	if err != nil {
		t.Fatalf("mapStores(only): %v", err)
	}
	if len(only) != 1 || only[0].alias != "ops" || only[0].cfg.Driver != "file" {
		t.Fatalf("unexpected filtered stores: %+v", only)
	}

	cfg.Scheduler.Stores["broken"] = config.StoreConfig{Driver: "sqlite"}
	if _, err := mapStores(cfg, nil); err == nil {
		t.Fatalf("expected error for sqlite store without path")
	}
}

func TestMapLogConfigUsesGroupLog(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = "-1001234567890"
	cfg.Logging.Level = "debug"
	cfg.Logging.Telegram.Enabled = true

	got := mapLogConfig(cfg)
	if got.Chat.ChatID != -1001234567890 || !got.Chat.Enabled || got.Level != "debug" {
		t.Fatalf("unexpected log config: %+v", got)
	}
}

func TestReasonFromSignal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sig  os.Signal
		want StopReason
	}{
		{os.Interrupt, StopSIGINT},
		{syscall.SIGTERM, StopSIGTERM},
		{syscall.SIGHUP, StopUnknown},
	}
	for _, tt := range tests {
		if got := ReasonFromSignal(tt.sig); got != tt.want {
			t.Fatalf("ReasonFromSignal(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}
