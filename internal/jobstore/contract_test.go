package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"cronbot/internal/job"
	"cronbot/pkg/cronexpr"
)

func sampleJob(id, msg string) job.Job {
	return job.Job{
		ID:         id,
		Expr:       cronexpr.MustParse("*/10 * * * *"),
		Payload:    job.Payload{Message: msg, Extra: map[string]any{"chat_id": int64(-1001234567890123)}},
		StoreAlias: "default",
		State:      job.Active,
		NextRun:    time.Date(2026, 10, 16, 10, 10, 0, 0, time.UTC),
		CreatedAt:  time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC),
	}
}

// runStoreContract exercises the behavior every driver must share.
func runStoreContract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}
	if ok, err := st.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("Delete missing = %v, %v; want false, nil", ok, err)
	}

	for _, j := range []job.Job{sampleJob("a", "first"), sampleJob("b", "second"), sampleJob("c", "third")} {
		if err := st.Put(ctx, j); err != nil {
			t.Fatalf("Put %s: %v", j.ID, err)
		}
	}

	got, err := st.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get b: %v", err)
	}
	if got.Payload.Message != "second" || got.Expr.String() != "*/10 * * * *" {
		t.Fatalf("unexpected job: %+v", got)
	}
	if !got.NextRun.Equal(sampleJob("b", "").NextRun) {
		t.Fatalf("NextRun = %s", got.NextRun)
	}
	if chat, ok := got.Payload.ExtraInt64("chat_id"); !ok || chat != -1001234567890123 {
		t.Fatalf("chat_id extra = %d, %v", chat, ok)
	}

	// Updating keeps the original position.
	upd := sampleJob("a", "first")
	upd.State = job.Paused
	upd.NextRun = time.Time{}
	if err := st.Put(ctx, upd); err != nil {
		t.Fatalf("Put update: %v", err)
	}

	if ok, err := st.Delete(ctx, "b"); err != nil || !ok {
		t.Fatalf("Delete b = %v, %v; want true, nil", ok, err)
	}

	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].State != job.Paused || !list[0].NextRun.IsZero() {
		t.Fatalf("update not persisted: %+v", list[0])
	}
}
