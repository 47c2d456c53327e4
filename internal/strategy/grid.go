package strategy

import (
	"fmt"

	"mxf-hedge-bot/internal/config"
)

// EvaluateGrid is the trend-pullback grid evaluator. Above the moving average
// only long legs may be opened, below it only shorts; legs stranded on the
// wrong side of a trend flip are left to exit through their own take-profit.
// Exits are checked before entries, in ledger order, and at most one signal is
// returned per call.
func EvaluateGrid(currentPrice, movingAverage float64, legs []GridLeg, cfg config.GridConfig) GridSignal {
	for i, leg := range legs {
		switch leg.Side {
		case SideLong:
			if currentPrice >= leg.EntryPrice+cfg.TakeProfit {
				return GridSignal{
					Action:     ActionSellClose,
					Price:      currentPrice,
					MatchedLeg: i,
					Reason:     fmt.Sprintf("long take-profit: %.0f >= %.0f + %.0f", currentPrice, leg.EntryPrice, cfg.TakeProfit),
				}
			}
		case SideShort:
			if currentPrice <= leg.EntryPrice-cfg.TakeProfit {
				return GridSignal{
					Action:     ActionBuyCover,
					Price:      currentPrice,
					MatchedLeg: i,
					Reason:     fmt.Sprintf("short take-profit: %.0f <= %.0f - %.0f", currentPrice, leg.EntryPrice, cfg.TakeProfit),
				}
			}
		}
	}

	if len(legs) >= cfg.MaxPositions {
		return hold("max positions reached")
	}

	if currentPrice >= movingAverage {
		lowest, haveLongs := lowestEntry(legs, SideLong)
		if !haveLongs {
			return GridSignal{Action: ActionBuyOpen, Price: currentPrice, MatchedLeg: -1, Reason: "bull trend: seed long"}
		}
		if currentPrice <= lowest-cfg.GridGap {
			return GridSignal{
				Action:     ActionBuyOpen,
				Price:      currentPrice,
				MatchedLeg: -1,
				Reason:     fmt.Sprintf("bull trend: add on dip (%.0f <= %.0f - %.0f)", currentPrice, lowest, cfg.GridGap),
			}
		}
		return hold("no entry condition met")
	}

	highest, haveShorts := highestEntry(legs, SideShort)
	if !haveShorts {
		return GridSignal{Action: ActionSellOpen, Price: currentPrice, MatchedLeg: -1, Reason: "bear trend: seed short"}
	}
	if currentPrice >= highest+cfg.GridGap {
		return GridSignal{
			Action:     ActionSellOpen,
			Price:      currentPrice,
			MatchedLeg: -1,
			Reason:     fmt.Sprintf("bear trend: add on rally (%.0f >= %.0f + %.0f)", currentPrice, highest, cfg.GridGap),
		}
	}
	return hold("no entry condition met")
}

func hold(reason string) GridSignal {
	return GridSignal{Action: ActionHold, MatchedLeg: -1, Reason: reason}
}

func lowestEntry(legs []GridLeg, side Side) (float64, bool) {
	best := 0.0
	found := false
	for _, leg := range legs {
		if leg.Side != side {
			continue
		}
		if !found || leg.EntryPrice < best {
			best = leg.EntryPrice
			found = true
		}
	}
	return best, found
}

func highestEntry(legs []GridLeg, side Side) (float64, bool) {
	best := 0.0
	found := false
	for _, leg := range legs {
		if leg.Side != side {
			continue
		}
		if !found || leg.EntryPrice > best {
			best = leg.EntryPrice
			found = true
		}
	}
	return best, found
}
