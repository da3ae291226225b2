// Package scheduler runs cron jobs for cronbot.
//
// # Overview
//
// A Service combines a Registry (the live job table, split into named
// stores) with a Dispatcher (one background loop that sleeps until the
// earliest next run, fires due jobs and reschedules them).
//
// Jobs are added with a 5-field cron expression (see pkg/cronexpr) and a
// payload. When a job fires, its payload is handed to the notify.Notifier
// given to New; the notifier is fixed for the lifetime of the Service.
//
// # Stores
//
// Every job lives in exactly one store, selected by alias. The "default"
// store always exists; more can be registered with AddStore. Jobs already
// present in a persistent store are loaded and rescheduled from the current
// time: missed runs are not replayed.
//
// # Concurrency
//
// A single registry mutex serializes every read-modify-write of the job
// table and the stores. The dispatcher's wake heap has its own lock, always
// taken after the registry lock. Notifiers are never called under either.
package scheduler
