package job

import (
	"testing"
	"time"

	"cronbot/pkg/cronexpr"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	next := time.Date(2026, 12, 5, 1, 15, 0, 0, time.UTC)
	in := Job{
		ID:         "abc",
		Expr:       cronexpr.MustParse("15 1 5 12 6"),
		Payload:    Payload{Message: "test job", Extra: map[string]any{"chat_id": int64(-1001234567890)}},
		StoreAlias: "default",
		State:      Paused,
		NextRun:    next,
		CreatedAt:  next.Add(-time.Hour),
	}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.ID != in.ID || out.Expr.String() != "15 1 5 12 6" || out.State != Paused || !out.NextRun.Equal(next) {
		t.Fatalf("unexpected decoded job: %+v", out)
	}
	id, ok := out.Payload.ExtraInt64("chat_id")
	if !ok || id != -1001234567890 {
		t.Fatalf("chat_id = %d (ok=%v), want -1001234567890", id, ok)
	}
}

func TestDecodeWithoutNextRun(t *testing.T) {
	t.Parallel()
	b, err := Encode(Job{ID: "x", Expr: cronexpr.MustParse("* * * * *"), State: Paused})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !out.NextRun.IsZero() {
		t.Fatalf("expected zero NextRun, got %s", out.NextRun)
	}
}

func TestCloneCopiesExtra(t *testing.T) {
	t.Parallel()
	j := Job{Payload: Payload{Extra: map[string]any{"k": "v"}}}
	c := j.Clone()
	c.Payload.Extra["k"] = "changed"
	if j.Payload.Extra["k"] != "v" {
		t.Fatal("Clone shares the Extra map")
	}
}
