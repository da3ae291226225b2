package scheduler

import "time"

// Clock is the dispatcher's view of time.
type Clock interface {
	Now() time.Time
	// TimerAt fires once at (or after) the absolute time at.
	TimerAt(at time.Time) Timer
}

type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) TimerAt(at time.Time) Timer {
	return realTimer{time.NewTimer(time.Until(at))}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }
