package eventbus

import "time"

// Job lifecycle event types.
const (
	JobAdded   = "job.added"
	JobRemoved = "job.removed"
	JobPaused  = "job.paused"
	JobResumed = "job.resumed"
	JobFired   = "job.fired"
	JobFailed  = "job.failed"
	// JobExpired is published when a job has no future trigger time left.
	JobExpired = "job.expired"
)

// JobEvent is the Data of every job.* event.
type JobEvent struct {
	JobID   string    `json:"job_id"`
	Store   string    `json:"store"`
	Cron    string    `json:"cron"`
	Message string    `json:"message,omitempty"`
	NextRun time.Time `json:"next_run,omitzero"`
	Err     string    `json:"err,omitempty"`
}
