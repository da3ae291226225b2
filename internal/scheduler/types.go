package scheduler

import (
	"fmt"
	"time"

	"cronbot/internal/job"
	"cronbot/internal/jobstore"
)

// DefaultStore is the alias of the store that always exists.
const DefaultStore = "default"

// DefaultPollInterval caps how long the dispatcher sleeps without rechecking.
const DefaultPollInterval = time.Minute

// ListTimeFormat renders next-run times in listings.
const ListTimeFormat = "2006-01-02 15:04:05"

// Config controls the scheduler service.
type Config struct {
	PollInterval time.Duration
	// DefaultStore configures the "default" store. Zero value is in-memory.
	DefaultStore jobstore.Config
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Summary is one line of a job listing.
type Summary struct {
	ID      string
	Store   string
	Cron    string
	Message string
	Paused  bool
	NextRun time.Time
}

func summarize(j job.Job) Summary {
	return Summary{
		ID:      j.ID,
		Store:   j.StoreAlias,
		Cron:    j.Expr.String(),
		Message: j.Payload.Message,
		Paused:  j.State == job.Paused,
		NextRun: j.NextRun,
	}
}

// String renders `<id>: "<cron>" <next-run|paused> <message>`.
func (s Summary) String() string {
	next := "paused"
	if !s.Paused {
		next = s.NextRun.Format(ListTimeFormat)
	}
	return fmt.Sprintf("%s: %q %s %s", s.ID, s.Cron, next, s.Message)
}
