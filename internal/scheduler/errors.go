package scheduler

import "errors"

var (
	ErrStoreNotFound = errors.New("store not found")
	ErrStoreExists   = errors.New("store already exists")
	// ErrStopped is returned by operations on a Service after Stop.
	ErrStopped = errors.New("scheduler stopped")
)
