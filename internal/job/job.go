// Package job defines the scheduled job record shared by the registry and the stores.
package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cronbot/pkg/cronexpr"
)

// State is the lifecycle state of a job.
type State int

const (
	Active State = iota
	Paused
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active", "":
		*s = Active
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("unknown job state %q", string(b))
	}
	return nil
}

// Payload is what a firing hands to the notifier.
type Payload struct {
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Job is a registered recurring action.
//
// NextRun is zero while the job is paused.
type Job struct {
	ID         string              `json:"id"`
	Expr       cronexpr.Expression `json:"expr"`
	Payload    Payload             `json:"payload"`
	StoreAlias string              `json:"store"`
	State      State               `json:"state"`
	NextRun    time.Time           `json:"next_run,omitzero"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Clone copies the Extra map (values are shared).
func (p Payload) Clone() Payload {
	if p.Extra != nil {
		extra := make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		p.Extra = extra
	}
	return p
}

// Clone returns a copy that shares no map with j.
func (j Job) Clone() Job {
	j.Payload = j.Payload.Clone()
	return j
}

// Encode serializes j for persistent stores.
func Encode(j Job) ([]byte, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Job, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	// Keep integer extras (chat ids) exact.
	dec.UseNumber()
	var j Job
	if err := dec.Decode(&j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}

// ExtraInt64 reads an integer extra regardless of how it was stored.
func (p Payload) ExtraInt64(key string) (int64, bool) {
	switch v := p.Extra[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
