// Package notifier is the async delivery pipeline for chat notifications.
//
// Firings and command replies are queued here instead of being sent inline,
// so a slow or rate-limited chat API never blocks the scheduler. A pool of
// workers drains the queue through a token bucket and retries failed sends
// with jittered exponential backoff.
//
// Delivery is delegated to a transport.Sender (the telegram adapter).
package notifier
