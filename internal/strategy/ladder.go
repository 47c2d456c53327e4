package strategy

import "mxf-hedge-bot/internal/config"

// TargetRatio maps a deviation percentage onto the hedge ratio of the most
// severe entry tier whose threshold is breached. Tiers are checked from the
// deepest threshold down, so simultaneous breaches resolve to the highest
// ratio. The mapping is stateless: it depends only on the current deviation,
// never on the previously held ratio.
func TargetRatio(deviationPct float64, tiers [3]config.HedgeTier) float64 {
	ratio, _ := targetTier(deviationPct, tiers)
	return ratio
}

func targetTier(deviationPct float64, tiers [3]config.HedgeTier) (float64, int) {
	switch {
	case deviationPct <= -tiers[2].ThresholdPct:
		return tiers[2].Ratio, 3
	case deviationPct <= -tiers[1].ThresholdPct:
		return tiers[1].Ratio, 2
	case deviationPct <= -tiers[0].ThresholdPct:
		return tiers[0].Ratio, 1
	default:
		return 0, 0
	}
}

func tierStatus(tier int) string {
	switch tier {
	case 3:
		return "hedge level 3 (full)"
	case 2:
		return "hedge level 2"
	case 1:
		return "hedge level 1"
	default:
		return "normal"
	}
}
