package strategy

import "time"

type Action string

const (
	ActionShort Action = "SHORT"
	ActionCover Action = "COVER"
	ActionHold  Action = "HOLD"

	ActionBuyOpen   Action = "BUY_OPEN"
	ActionSellOpen  Action = "SELL_OPEN"
	ActionSellClose Action = "SELL_CLOSE"
	ActionBuyCover  Action = "BUY_COVER"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// One lot of the ETF is 1000 shares.
const ETFLotSize = 1000

// MarketSnapshot is the index state a hedge evaluation runs against.
type MarketSnapshot struct {
	IndexPrice    float64
	MovingAverage float64
	Timestamp     time.Time
}

// DeviationPercent is the distance of the index from its moving average in
// percent. A zero or negative moving average means the indicator is not yet
// available; deviation is defined as zero rather than undefined.
func (s MarketSnapshot) DeviationPercent() float64 {
	if s.MovingAverage <= 0 {
		return 0
	}
	return (s.IndexPrice - s.MovingAverage) / s.MovingAverage * 100
}

func (s MarketSnapshot) DeviationPoints() float64 {
	if s.MovingAverage <= 0 {
		return 0
	}
	return s.IndexPrice - s.MovingAverage
}

// ExposureFacts describes the ETF holding being hedged. Quantity is in lots.
type ExposureFacts struct {
	ETFQuantity    int
	ETFPrice       float64
	LeverageFactor float64
}

// NotionalExposure is the index exposure the holding represents: market value
// scaled by the ETF's leverage factor.
func (e ExposureFacts) NotionalExposure() float64 {
	return float64(e.ETFQuantity) * ETFLotSize * e.ETFPrice * e.LeverageFactor
}

// Decision is the outcome of one hedge evaluation. It is a fresh value each
// call; position state stays with the caller.
type Decision struct {
	Action           Action
	Quantity         int
	TargetQty        int
	QtyDiff          int
	CurrentShortQty  int
	DeviationPercent float64
	DeviationPoints  float64
	TargetRatio      float64
	HedgeStatus      string
	Reason           string
}

// GridLeg is one open position in the mean-reversion grid, identified by its
// slot in the ledger.
type GridLeg struct {
	EntryPrice float64
	Side       Side
	OpenedAt   time.Time
}

// GridSignal is the outcome of one grid evaluation. MatchedLeg is the ledger
// index of the leg an exit signal refers to, -1 otherwise.
type GridSignal struct {
	Action     Action
	Price      float64
	MatchedLeg int
	Reason     string
}
