package state

import (
	"context"
	"encoding/json"
	"strings"
)

const HedgeSnapshotKey = "hedge:last_snapshot"

// HedgeSnapshot is the last hedge evaluation persisted across restarts. The
// dashboard and the daily scheduler both read it to show what the engine
// decided most recently.
type HedgeSnapshot struct {
	Action          string  `json:"action"`
	IndexPrice      float64 `json:"index_price"`
	MovingAverage   float64 `json:"moving_average"`
	DeviationPct    float64 `json:"deviation_pct"`
	TargetRatio     float64 `json:"target_ratio"`
	TargetQty       int     `json:"target_qty"`
	CurrentShortQty int     `json:"current_short_qty"`
	RiskIndex       float64 `json:"risk_index"`
	UpdatedAtMS     int64   `json:"updated_at_ms"`
}

func LoadHedgeSnapshot(ctx context.Context, store Store) (HedgeSnapshot, bool, error) {
	if store == nil {
		return HedgeSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, HedgeSnapshotKey)
	if err != nil {
		return HedgeSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return HedgeSnapshot{}, false, nil
	}
	var snapshot HedgeSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return HedgeSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveHedgeSnapshot(ctx context.Context, store Store, snapshot HedgeSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, HedgeSnapshotKey, string(payload))
}
