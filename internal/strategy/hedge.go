package strategy

import (
	"fmt"
	"math"

	"mxf-hedge-bot/internal/config"
)

// EvaluateHedge computes the futures position the tiered hedge wants to hold
// against the given ETF exposure and the trade needed to get there. The
// computation is pure; applying QtyDiff to the live position is the caller's
// job.
func EvaluateHedge(snap MarketSnapshot, exposure ExposureFacts, currentShortQty int, cfg config.HedgeConfig) (Decision, error) {
	if err := config.ValidateHedge(cfg); err != nil {
		return Decision{}, err
	}
	if exposure.ETFQuantity < 0 {
		return Decision{}, fmt.Errorf("etf quantity must be >= 0, got %d", exposure.ETFQuantity)
	}
	if currentShortQty < 0 {
		return Decision{}, fmt.Errorf("current short quantity must be >= 0, got %d", currentShortQty)
	}
	if exposure.LeverageFactor == 0 {
		exposure.LeverageFactor = cfg.LeverageFactor
	}

	deviationPct := snap.DeviationPercent()
	ratio, tier := targetTier(deviationPct, cfg.EntryTiers)

	contractValue := snap.IndexPrice * cfg.ContractMultiplier
	targetQty := 0
	if contractValue > 0 {
		targetQty = int(math.Round(exposure.NotionalExposure() * ratio / contractValue))
	}

	qtyDiff := targetQty - currentShortQty
	decision := Decision{
		Action:           ActionHold,
		TargetQty:        targetQty,
		QtyDiff:          qtyDiff,
		CurrentShortQty:  currentShortQty,
		DeviationPercent: deviationPct,
		DeviationPoints:  snap.DeviationPoints(),
		TargetRatio:      ratio,
		HedgeStatus:      tierStatus(tier),
	}
	switch {
	case qtyDiff > 0:
		decision.Action = ActionShort
		decision.Quantity = qtyDiff
		decision.Reason = fmt.Sprintf("deviation %.2f%% wants %d short, holding %d: add %d", deviationPct, targetQty, currentShortQty, qtyDiff)
	case qtyDiff < 0:
		decision.Action = ActionCover
		decision.Quantity = -qtyDiff
		decision.Reason = fmt.Sprintf("deviation %.2f%% wants %d short, holding %d: cover %d", deviationPct, targetQty, currentShortQty, -qtyDiff)
	default:
		decision.Reason = fmt.Sprintf("deviation %.2f%% wants %d short, already there", deviationPct, targetQty)
	}
	return decision, nil
}

// ReboundEstimate is the projected remaining hedge once the index recovers
// past a rebound tier. Display-only: the live decision recomputes its target
// from the entry tiers alone.
type ReboundEstimate struct {
	ThresholdPct float64
	TargetQty    int
	CoverQty     int
}

// EstimateReboundCovers computes, for each rebound tier, how many contracts
// would remain and how many would be bought back from the current short
// position if that tier's ratio were applied.
func EstimateReboundCovers(snap MarketSnapshot, exposure ExposureFacts, currentShortQty int, cfg config.HedgeConfig) []ReboundEstimate {
	if exposure.LeverageFactor == 0 {
		exposure.LeverageFactor = cfg.LeverageFactor
	}
	contractValue := snap.IndexPrice * cfg.ContractMultiplier
	estimates := make([]ReboundEstimate, 0, len(cfg.ReboundTiers))
	for _, tier := range cfg.ReboundTiers {
		target := 0
		if contractValue > 0 {
			target = int(math.Round(exposure.NotionalExposure() * tier.Ratio / contractValue))
		}
		cover := currentShortQty - target
		if cover < 0 {
			cover = 0
		}
		estimates = append(estimates, ReboundEstimate{
			ThresholdPct: tier.ThresholdPct,
			TargetQty:    target,
			CoverQty:     cover,
		})
	}
	return estimates
}
