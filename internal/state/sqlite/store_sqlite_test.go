package sqlite

import (
	"context"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "value" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestRunLog(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	_, ok, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("last run failed: %v", err)
	}
	if ok {
		t.Fatalf("expected empty run log")
	}

	first := RunRecord{RunDate: "2024-01-02", Action: "SHORT", Quantity: 1, RiskIndex: 450, Reason: "deviation -2.10%"}
	second := RunRecord{RunDate: "2024-01-03", Action: "HOLD", Quantity: 0, RiskIndex: 480, Reason: "within band"}
	if err := store.RecordRun(ctx, first); err != nil {
		t.Fatalf("record run failed: %v", err)
	}
	if err := store.RecordRun(ctx, second); err != nil {
		t.Fatalf("record run failed: %v", err)
	}

	got, ok, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("last run failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected a run log entry")
	}
	if got.RunDate != second.RunDate || got.Action != second.Action || got.RiskIndex != second.RiskIndex {
		t.Fatalf("unexpected last run: %#v", got)
	}
	if got.CreatedAt == "" {
		t.Fatalf("expected created_at to be populated")
	}
}
