package backtest

import (
	"fmt"
	"math"

	"mxf-hedge-bot/internal/config"
	"mxf-hedge-bot/internal/strategy"
)

// GridParams configures a grid-strategy simulation run.
type GridParams struct {
	Grid              config.GridConfig
	MAPeriod          int
	InitialCapital    float64
	PointValue        float64
	MarginPerContract float64
}

// GridResult is the outcome of a grid simulation.
type GridResult struct {
	FinalEquity  float64
	TotalReturn  float64
	MaxDrawdown  float64
	TradeCount   int
	Ledger       []LedgerEntry
	EquityCurve  []EquityPoint
	OpenLegs     []strategy.GridLeg
	Liquidated   bool
	BlockedOpens int
}

// RunGrid replays the grid evaluator bar by bar under margin constraints.
// Opens that the remaining equity cannot margin are dropped for that bar;
// closes are always honored. The run terminates early, permanently, the
// moment equity is exhausted.
func RunGrid(bars []Bar, params GridParams) (GridResult, error) {
	if len(bars) == 0 {
		return GridResult{}, ErrNoData
	}
	if params.MAPeriod <= 0 {
		return GridResult{}, fmt.Errorf("ma period must be > 0, got %d", params.MAPeriod)
	}
	if len(bars) < params.MAPeriod {
		return GridResult{}, fmt.Errorf("series has %d bars, ma period %d needs more", len(bars), params.MAPeriod)
	}
	if params.InitialCapital <= 0 {
		return GridResult{}, fmt.Errorf("initial capital must be > 0, got %f", params.InitialCapital)
	}
	if params.PointValue <= 0 {
		return GridResult{}, fmt.Errorf("point value must be > 0, got %f", params.PointValue)
	}
	if params.MarginPerContract <= 0 {
		return GridResult{}, fmt.Errorf("margin per contract must be > 0, got %f", params.MarginPerContract)
	}

	ma := RollingMean(closes(bars), params.MAPeriod)

	var legs []strategy.GridLeg
	cash := params.InitialCapital
	maxEquity := params.InitialCapital
	result := GridResult{}

	for i, bar := range bars {
		if math.IsNaN(ma[i]) {
			continue
		}
		price := bar.Close

		var floatPnL float64
		for _, leg := range legs {
			if leg.Side == strategy.SideLong {
				floatPnL += (price - leg.EntryPrice) * params.PointValue
			} else {
				floatPnL += (leg.EntryPrice - price) * params.PointValue
			}
		}
		equity := cash + floatPnL

		if equity <= 0 {
			result.Liquidated = true
			result.Ledger = append(result.Ledger, LedgerEntry{
				Date:   bar.Date,
				Action: ActionLiquidation,
				Price:  price,
				PnL:    floatPnL,
				Reason: "equity exhausted",
			})
			cash = 0
			break
		}

		if equity > maxEquity {
			maxEquity = equity
		}
		drawdown := maxEquity - equity
		if drawdown > result.MaxDrawdown {
			result.MaxDrawdown = drawdown
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Date: bar.Date, Equity: equity, Drawdown: drawdown})

		sig := strategy.EvaluateGrid(price, ma[i], legs, params.Grid)
		switch sig.Action {
		case strategy.ActionBuyOpen, strategy.ActionSellOpen:
			if float64(len(legs)+1)*params.MarginPerContract > equity {
				result.BlockedOpens++
				continue
			}
			side := strategy.SideLong
			if sig.Action == strategy.ActionSellOpen {
				side = strategy.SideShort
			}
			legs = append(legs, strategy.GridLeg{EntryPrice: price, Side: side, OpenedAt: bar.Date})
			result.Ledger = append(result.Ledger, LedgerEntry{
				Date:     bar.Date,
				Action:   sig.Action,
				Price:    price,
				Quantity: 1,
				Reason:   sig.Reason,
			})
		case strategy.ActionSellClose, strategy.ActionBuyCover:
			leg := legs[sig.MatchedLeg]
			legs = append(legs[:sig.MatchedLeg], legs[sig.MatchedLeg+1:]...)
			var pnl float64
			if sig.Action == strategy.ActionSellClose {
				pnl = (price - leg.EntryPrice) * params.PointValue
			} else {
				pnl = (leg.EntryPrice - price) * params.PointValue
			}
			cash += pnl
			result.Ledger = append(result.Ledger, LedgerEntry{
				Date:     bar.Date,
				Action:   sig.Action,
				Price:    price,
				Quantity: 1,
				PnL:      pnl,
				Reason:   sig.Reason,
			})
		}
	}

	result.FinalEquity = cash
	result.TotalReturn = cash - params.InitialCapital
	result.TradeCount = len(result.Ledger)
	result.OpenLegs = legs
	return result, nil
}
