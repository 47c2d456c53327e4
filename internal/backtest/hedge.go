package backtest

import (
	"fmt"
	"math"
	"time"

	"mxf-hedge-bot/internal/config"
	"mxf-hedge-bot/internal/strategy"
)

// HedgeBar aligns one trading day of the hedged ETF and the index it tracks.
type HedgeBar struct {
	Date       time.Time
	ETFClose   float64
	IndexClose float64
}

// HedgeParams configures a hedge-strategy simulation run. Cost rates default
// to zero when unset; the tier arrays follow config.HedgeConfig semantics.
type HedgeParams struct {
	Hedge          config.HedgeConfig
	MAPeriod       int
	InitialCapital float64
	ETFCapital     float64

	FuturesCommission float64
	FuturesTaxRate    float64
	ETFCommissionRate float64
}

// HedgePoint is one day of the hedge simulation's equity history.
type HedgePoint struct {
	Date         time.Time
	Equity       float64
	HedgeRatio   float64
	HedgeQty     int
	Index        float64
	MA           float64
	DeviationPct float64
	ETFPrice     float64
	Drawdown     float64
}

// HedgeResult is the outcome of a hedge simulation.
type HedgeResult struct {
	FinalEquity float64
	TotalReturn float64
	MaxDrawdown float64
	TradeCount  int
	ETFQuantity int
	Ledger      []LedgerEntry
	History     []HedgePoint
	Liquidated  bool
}

// RunHedge replays the tiered hedge against aligned ETF and index series.
// Unlike the live decision path, the simulator holds a ratcheted hedge-ratio
// state: entry tiers only raise it, rebound tiers only cap it, so the
// position is not flapped inside the band between entry and rebound
// thresholds. Drawdown here is the fractional distance from the equity peak.
func RunHedge(bars []HedgeBar, params HedgeParams) (HedgeResult, error) {
	if len(bars) == 0 {
		return HedgeResult{}, ErrNoData
	}
	if err := config.ValidateHedge(params.Hedge); err != nil {
		return HedgeResult{}, err
	}
	if params.MAPeriod <= 0 {
		return HedgeResult{}, fmt.Errorf("ma period must be > 0, got %d", params.MAPeriod)
	}
	if len(bars) < params.MAPeriod {
		return HedgeResult{}, fmt.Errorf("series has %d bars, ma period %d needs more", len(bars), params.MAPeriod)
	}
	if params.InitialCapital <= 0 || params.ETFCapital <= 0 || params.ETFCapital > params.InitialCapital {
		return HedgeResult{}, fmt.Errorf("capital split invalid: initial %f, etf %f", params.InitialCapital, params.ETFCapital)
	}

	indexCloses := make([]float64, len(bars))
	for i, bar := range bars {
		indexCloses[i] = bar.IndexClose
	}
	ma := RollingMean(indexCloses, params.MAPeriod)

	startPrice := bars[0].ETFClose
	if startPrice <= 0 {
		return HedgeResult{}, fmt.Errorf("first etf close must be > 0, got %f", startPrice)
	}
	etfShares := int(params.ETFCapital / (startPrice * (1 + params.ETFCommissionRate)))
	cash := params.InitialCapital - float64(etfShares)*startPrice*(1+params.ETFCommissionRate)

	result := HedgeResult{ETFQuantity: etfShares}
	heldRatio := 0.0
	heldQty := 0
	peak := 0.0

	for i, bar := range bars {
		if math.IsNaN(ma[i]) {
			continue
		}
		deviationPct := (bar.IndexClose - ma[i]) / ma[i] * 100

		entryTarget := strategy.TargetRatio(deviationPct, params.Hedge.EntryTiers)
		maxAllowed := reboundCap(deviationPct, params.Hedge.ReboundTiers)
		if entryTarget > heldRatio {
			heldRatio = entryTarget
		} else if maxAllowed < heldRatio {
			heldRatio = maxAllowed
		}

		etfValue := float64(etfShares) * bar.ETFClose
		exposure := etfValue * params.Hedge.LeverageFactor
		contractValue := bar.IndexClose * params.Hedge.ContractMultiplier

		targetQty := 0
		if contractValue > 0 {
			targetQty = int(math.Round(exposure * heldRatio / contractValue))
		}

		tradeQty := targetQty - heldQty
		if tradeQty != 0 {
			cost := math.Abs(float64(tradeQty)) * params.FuturesCommission
			cost += math.Abs(float64(tradeQty)) * contractValue * params.FuturesTaxRate
			cash -= cost

			action := strategy.ActionShort
			if tradeQty < 0 {
				action = strategy.ActionCover
			}
			result.Ledger = append(result.Ledger, LedgerEntry{
				Date:     bar.Date,
				Action:   action,
				Price:    bar.IndexClose,
				Quantity: abs(tradeQty),
				PnL:      -cost,
				Reason:   fmt.Sprintf("deviation %.2f%%, ratio %.2f", deviationPct, heldRatio),
			})
		}

		// Daily mark-to-market on the short futures held through the day.
		if i > 0 {
			cash += -float64(heldQty) * (bar.IndexClose - bars[i-1].IndexClose) * params.Hedge.ContractMultiplier
		}
		heldQty = targetQty

		equity := cash + float64(etfShares)*bar.ETFClose
		if equity <= 0 {
			result.Liquidated = true
			result.Ledger = append(result.Ledger, LedgerEntry{
				Date:   bar.Date,
				Action: ActionLiquidation,
				Price:  bar.IndexClose,
				Reason: "equity exhausted",
			})
			equity = 0
			result.History = append(result.History, HedgePoint{
				Date: bar.Date, Equity: equity, HedgeRatio: heldRatio, HedgeQty: heldQty,
				Index: bar.IndexClose, MA: ma[i], DeviationPct: deviationPct, ETFPrice: bar.ETFClose,
			})
			break
		}

		if equity > peak {
			peak = equity
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - equity) / peak
		}
		if drawdown > result.MaxDrawdown {
			result.MaxDrawdown = drawdown
		}
		result.History = append(result.History, HedgePoint{
			Date:         bar.Date,
			Equity:       equity,
			HedgeRatio:   heldRatio,
			HedgeQty:     heldQty,
			Index:        bar.IndexClose,
			MA:           ma[i],
			DeviationPct: deviationPct,
			ETFPrice:     bar.ETFClose,
			Drawdown:     drawdown,
		})
	}

	if len(result.History) > 0 {
		result.FinalEquity = result.History[len(result.History)-1].Equity
	}
	result.TotalReturn = result.FinalEquity - params.InitialCapital
	result.TradeCount = len(result.Ledger)
	return result, nil
}

// reboundCap returns the highest hedge ratio the rebound tiers still allow at
// the given deviation. Tiers are checked from the strongest recovery down;
// below the first rebound threshold there is no cap.
func reboundCap(deviationPct float64, tiers [3]config.HedgeTier) float64 {
	switch {
	case deviationPct > tiers[2].ThresholdPct:
		return tiers[2].Ratio
	case deviationPct > tiers[1].ThresholdPct:
		return tiers[1].Ratio
	case deviationPct > tiers[0].ThresholdPct:
		return tiers[0].Ratio
	default:
		return 1.0
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
