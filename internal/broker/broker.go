package broker

import (
	"context"
	"errors"
)

var (
	ErrNoMarkPrice    = errors.New("broker: no mark price for symbol")
	ErrUnknownSymbol  = errors.New("broker: unknown symbol")
	ErrOrderRejected  = errors.New("broker: order rejected")
	ErrGatewayClosed  = errors.New("broker: gateway connection closed")
	ErrRequestTimeout = errors.New("broker: request timed out")
)

// Order is a futures order request. A zero LimitPrice means fill at the
// current mark. Quantity is always positive; IsBuy carries the direction.
type Order struct {
	Symbol        string  `msgpack:"symbol"`
	IsBuy         bool    `msgpack:"is_buy"`
	Quantity      int     `msgpack:"quantity"`
	LimitPrice    float64 `msgpack:"limit_price"`
	ClientOrderID string  `msgpack:"client_order_id"`
}

// Position is a signed holding in one contract: negative Quantity is short.
type Position struct {
	Symbol   string  `msgpack:"symbol"`
	Quantity int     `msgpack:"quantity"`
	AvgPrice float64 `msgpack:"avg_price"`
}

// EquityInfo is the account summary the margin guard consumes. RiskIndex is
// zero when the broker cannot compute one.
type EquityInfo struct {
	Equity        float64 `msgpack:"equity"`
	UnrealizedPnL float64 `msgpack:"unrealized_pnl"`
	RiskIndex     float64 `msgpack:"risk_index"`
}

type Broker interface {
	PlaceOrder(ctx context.Context, order Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	Position(ctx context.Context, symbol string) (Position, error)
	Equity(ctx context.Context) (EquityInfo, error)
	Close() error
}
