package backtest

import (
	"errors"
	"testing"
	"time"

	"mxf-hedge-bot/internal/config"
	"mxf-hedge-bot/internal/strategy"
)

func gridBars(closes ...float64) []Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func gridParams(mer float64) GridParams {
	return GridParams{
		Grid:              config.GridConfig{GridGap: 100, TakeProfit: 100, MaxPositions: 10},
		MAPeriod:          1,
		InitialCapital:    100000,
		PointValue:        50,
		MarginPerContract: mer,
	}
}

func TestRunGridRefusesEmptySeries(t *testing.T) {
	_, err := RunGrid(nil, gridParams(60000))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestRunGridRefusesShortSeries(t *testing.T) {
	params := gridParams(60000)
	params.MAPeriod = 10
	if _, err := RunGrid(gridBars(15000, 15100), params); err == nil {
		t.Fatalf("expected error for series shorter than ma period")
	}
}

func TestRunGridTakeProfitRealizesPnL(t *testing.T) {
	// MA period 1 keeps price == MA: bull trend, seed long on the first bar,
	// take profit on the second.
	result, err := RunGrid(gridBars(15000, 15100), gridParams(60000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TradeCount != 2 {
		t.Fatalf("expected open+close, got %d entries", result.TradeCount)
	}
	if result.Ledger[0].Action != strategy.ActionBuyOpen {
		t.Fatalf("expected BUY_OPEN first, got %s", result.Ledger[0].Action)
	}
	if result.Ledger[1].Action != strategy.ActionSellClose || result.Ledger[1].PnL != 5000 {
		t.Fatalf("expected SELL_CLOSE pnl 5000, got %s pnl %f", result.Ledger[1].Action, result.Ledger[1].PnL)
	}
	if result.FinalEquity != 105000 {
		t.Fatalf("expected final equity 105000, got %f", result.FinalEquity)
	}
	if len(result.OpenLegs) != 0 {
		t.Fatalf("expected no open legs, got %d", len(result.OpenLegs))
	}
	if result.Liquidated {
		t.Fatalf("unexpected liquidation")
	}
}

func TestRunGridLiquidationStopsTheRun(t *testing.T) {
	// Warm-up bar, then a short seeded below the MA, then a spike that wipes
	// the account: (15000-17000)*50 = -100000 against 100000 capital.
	params := gridParams(60000)
	params.MAPeriod = 2
	result, err := RunGrid(gridBars(15100, 15000, 17000, 17100, 17200), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Liquidated {
		t.Fatalf("expected liquidation")
	}
	last := result.Ledger[len(result.Ledger)-1]
	if last.Action != ActionLiquidation {
		t.Fatalf("expected LIQUIDATION entry last, got %s", last.Action)
	}
	// No bars after the liquidation bar may contribute ledger entries.
	for _, entry := range result.Ledger {
		if entry.Date.After(last.Date) {
			t.Fatalf("ledger entry after liquidation: %+v", entry)
		}
	}
	if result.FinalEquity < 0 {
		t.Fatalf("equity must not be reported negative, got %f", result.FinalEquity)
	}
}

func TestRunGridMarginGateDropsOpens(t *testing.T) {
	// One contract costs 60000 margin against 100000 equity: the second add
	// can never be funded.
	result, err := RunGrid(gridBars(15000, 14890, 14780, 14670), GridParams{
		Grid:              config.GridConfig{GridGap: 100, TakeProfit: 10000, MaxPositions: 10},
		MAPeriod:          1,
		InitialCapital:    100000,
		PointValue:        50,
		MarginPerContract: 60000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.OpenLegs) != 1 {
		t.Fatalf("expected the margin gate to hold legs at 1, got %d", len(result.OpenLegs))
	}
	if result.BlockedOpens == 0 {
		t.Fatalf("expected blocked opens to be counted")
	}
	// The property: margin committed never exceeded the equity recorded
	// before that bar's opens were evaluated.
	legCount := 0
	for i, entry := range result.Ledger {
		if entry.Action == strategy.ActionBuyOpen || entry.Action == strategy.ActionSellOpen {
			legCount++
			if float64(legCount)*60000 > result.EquityCurve[0].Equity {
				t.Fatalf("ledger entry %d commits more margin than equity", i)
			}
		}
	}
}

func TestRunGridEquityCurveTracksDrawdown(t *testing.T) {
	result, err := RunGrid(gridBars(15000, 14890, 15000, 15100), gridParams(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.EquityCurve) != 4 {
		t.Fatalf("expected 4 equity points, got %d", len(result.EquityCurve))
	}
	for _, point := range result.EquityCurve {
		if point.Drawdown < 0 {
			t.Fatalf("drawdown must be non-negative, got %f", point.Drawdown)
		}
	}
	if result.MaxDrawdown == 0 {
		t.Fatalf("expected a non-zero drawdown from the dip")
	}
}
