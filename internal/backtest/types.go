package backtest

import (
	"errors"
	"time"

	"mxf-hedge-bot/internal/strategy"
)

var ErrNoData = errors.New("historical series is empty")

// Ledger action recorded when the run is force-terminated.
const ActionLiquidation strategy.Action = "LIQUIDATION"

// LedgerEntry is one row of the simulated trade log.
type LedgerEntry struct {
	Date     time.Time
	Action   strategy.Action
	Price    float64
	Quantity int
	PnL      float64
	Reason   string
}

// EquityPoint captures equity and drawdown after one processed bar.
type EquityPoint struct {
	Date     time.Time
	Equity   float64
	Drawdown float64
}
