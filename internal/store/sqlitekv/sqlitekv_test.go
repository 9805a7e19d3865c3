package sqlitekv

import (
	"context"
	"testing"
	"time"

	"charognard/internal/model"
)

func TestKVRoundTrip(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	if _, ok, err := db.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := db.Put(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(ctx, "k", []byte(`{"a":2}`)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.Get(ctx, "k")
	if err != nil || !ok || string(v) != `{"a":2}` {
		t.Fatalf("value mismatch: %v %v %s", err, ok, v)
	}
}

func TestActionLog(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	recs := []model.ActionRecord{
		{At: now.Add(-2 * time.Hour), AccountID: "1", Action: model.ActionFollow},
		{At: now.Add(-time.Hour), AccountID: "1", Action: model.ActionFollow},
		{At: now.Add(-time.Hour), AccountID: "1", Action: model.ActionUnfollow},
		{At: now.Add(-time.Hour), AccountID: "2", Action: model.ActionFollow},
	}
	for _, r := range recs {
		if err := db.PutAction(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	n, err := db.CountActionsWithin(ctx, "1", now.Add(-3*time.Hour), now, model.ActionFollow)
	if err != nil || n != 2 {
		t.Fatalf("follow count mismatch: %v %d", err, n)
	}
	got, err := db.LoadActions(ctx, "1", now.Add(-90*time.Minute), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Action != model.ActionFollow || got[1].Action != model.ActionUnfollow {
		t.Fatalf("unexpected actions: %+v", got)
	}
	if !got[0].At.Equal(now.Add(-time.Hour)) {
		t.Fatalf("timestamp mismatch: %v", got[0].At)
	}
}
