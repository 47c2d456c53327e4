package state

import (
	"context"
	"encoding/json"
	"strings"

	"mxf-hedge-bot/internal/strategy"
)

const GridLegsKey = "grid:legs"

// LoadGridLegs restores the open grid ledger. A missing key is an empty
// ledger, not an error.
func LoadGridLegs(ctx context.Context, store Store) ([]strategy.GridLeg, error) {
	if store == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, GridLegsKey)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var legs []strategy.GridLeg
	if err := json.Unmarshal([]byte(raw), &legs); err != nil {
		return nil, err
	}
	return legs, nil
}

func SaveGridLegs(ctx context.Context, store Store, legs []strategy.GridLeg) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(legs)
	if err != nil {
		return err
	}
	return store.Set(ctx, GridLegsKey, string(payload))
}
