// Package notify defines where job firings go.
//
// The scheduler is given exactly one Notifier at construction. Implementations
// here deliver to a chat (Chat), to a watermill topic (Watermill), to the
// in-process event bus (Bus), or to several of those (Multi).
package notify

import (
	"context"
	"errors"
	"time"
)

// Notifier receives one call per firing. extra is the job's opaque payload
// data and is owned by the callee.
type Notifier interface {
	Notify(ctx context.Context, message string, extra map[string]any) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, message string, extra map[string]any) error

func (f Func) Notify(ctx context.Context, message string, extra map[string]any) error {
	return f(ctx, message, extra)
}

// Multi calls every notifier in order and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string, extra map[string]any) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		// Each notifier gets its own copy.
		cp := make(map[string]any, len(extra))
		for k, v := range extra {
			cp[k] = v
		}
		if err := n.Notify(ctx, message, cp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JobInfo describes the firing a Notify call belongs to.
type JobInfo struct {
	ID          string    `json:"job_id"`
	Store       string    `json:"store"`
	Cron        string    `json:"cron"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type jobInfoKey struct{}

// WithJob attaches firing metadata to ctx.
func WithJob(ctx context.Context, info JobInfo) context.Context {
	return context.WithValue(ctx, jobInfoKey{}, info)
}

// JobFrom returns the firing metadata set by WithJob.
func JobFrom(ctx context.Context) (JobInfo, bool) {
	info, ok := ctx.Value(jobInfoKey{}).(JobInfo)
	return info, ok
}
