package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string found at config path.
// An empty value means unset and yields 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. 30s, 5m): %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for unset or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// durationField is one duration-valued key of the top-level sections.
// Store busy timeouts are checked with their store.
type durationField struct {
	path string
	raw  string
	min  time.Duration
}

func (c *Config) durationFields() []durationField {
	n := c.NotifierOrDefault()
	return []durationField{
		{path: "telegram.poll_timeout", raw: c.Telegram.PollTimeout},
		{path: "scheduler.poll_interval", raw: c.Scheduler.PollInterval, min: time.Second},
		{path: "notifier.retry_base", raw: n.RetryBase},
		{path: "notifier.retry_max_delay", raw: n.RetryMaxDelay},
	}
}

func (f durationField) check() (time.Duration, error) {
	d, err := ParseDurationField(f.path, f.raw)
	if err != nil {
		return 0, err
	}
	if d != 0 && d < f.min {
		return 0, fmt.Errorf("%s: %s is below the minimum of %s", f.path, d, f.min)
	}
	return d, nil
}
