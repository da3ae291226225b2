// Package command turns chat text into scheduler operations.
//
// Routes are regular expressions matched against the whole (trimmed) message.
// Named capture groups become Request.Match entries. Matched commands run on a
// bounded worker pool behind the middleware chain (panic recovery, request log,
// timeout); replies go back to the originating chat and thread.
package command
