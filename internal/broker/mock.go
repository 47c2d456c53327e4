package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Mock is an in-memory broker with average-cost position accounting. Orders
// fill immediately at the limit price, or at the mark price when no limit is
// given. It backs paper-trading mode and tests.
type Mock struct {
	mu                sync.Mutex
	balance           float64
	marginPerContract float64
	marks             map[string]float64
	multipliers       map[string]float64
	positions         map[string]*mockPosition
	nextID            int
}

type mockPosition struct {
	quantity int
	avgPrice float64
}

func NewMock(initialBalance float64) *Mock {
	return &Mock{
		balance:           initialBalance,
		marginPerContract: 12250,
		marks:             make(map[string]float64),
		multipliers:       map[string]float64{"MXF": 50, "TXF": 200},
		positions:         make(map[string]*mockPosition),
	}
}

// SetMarkPrice updates the price the mock fills and marks against.
func (m *Mock) SetMarkPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[symbol] = price
}

// SetMultiplier registers the point value of a contract symbol.
func (m *Mock) SetMultiplier(symbol string, multiplier float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.multipliers[symbol] = multiplier
}

// SetMarginPerContract overrides the margin used for the risk index.
func (m *Mock) SetMarginPerContract(margin float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marginPerContract = margin
}

func (m *Mock) PlaceOrder(ctx context.Context, order Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if order.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be > 0", ErrOrderRejected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	multiplier, ok := m.multipliers[order.Symbol]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSymbol, order.Symbol)
	}
	fillPrice := order.LimitPrice
	if fillPrice <= 0 {
		mark, ok := m.marks[order.Symbol]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNoMarkPrice, order.Symbol)
		}
		fillPrice = mark
	}

	delta := order.Quantity
	if !order.IsBuy {
		delta = -delta
	}
	pos := m.positions[order.Symbol]
	if pos == nil {
		pos = &mockPosition{}
		m.positions[order.Symbol] = pos
	}
	m.applyFill(pos, delta, fillPrice, multiplier)

	m.nextID++
	return "mock-" + strconv.Itoa(m.nextID), nil
}

// applyFill folds a signed fill into the position. Fills in the direction of
// the position extend it at a blended average price; fills against it realize
// PnL on the closed portion, and any excess flips the position at the fill
// price.
func (m *Mock) applyFill(pos *mockPosition, delta int, price, multiplier float64) {
	if pos.quantity == 0 || sameSign(pos.quantity, delta) {
		total := abs(pos.quantity) + abs(delta)
		pos.avgPrice = (float64(abs(pos.quantity))*pos.avgPrice + float64(abs(delta))*price) / float64(total)
		pos.quantity += delta
		return
	}
	closed := abs(delta)
	if abs(pos.quantity) < closed {
		closed = abs(pos.quantity)
	}
	if pos.quantity > 0 {
		m.balance += (price - pos.avgPrice) * float64(closed) * multiplier
	} else {
		m.balance += (pos.avgPrice - price) * float64(closed) * multiplier
	}
	pos.quantity += delta
	if pos.quantity == 0 {
		pos.avgPrice = 0
	} else if !sameSign(pos.quantity, -delta) {
		pos.avgPrice = price
	}
}

func (m *Mock) CancelOrder(ctx context.Context, orderID string) error {
	_ = orderID
	return ctx.Err()
}

func (m *Mock) Position(ctx context.Context, symbol string) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.positions[symbol]
	if pos == nil {
		return Position{Symbol: symbol}, nil
	}
	return Position{Symbol: symbol, Quantity: pos.quantity, AvgPrice: pos.avgPrice}, nil
}

func (m *Mock) Equity(ctx context.Context) (EquityInfo, error) {
	if err := ctx.Err(); err != nil {
		return EquityInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var unrealized float64
	contracts := 0
	for symbol, pos := range m.positions {
		if pos.quantity == 0 {
			continue
		}
		contracts += abs(pos.quantity)
		mark, ok := m.marks[symbol]
		if !ok {
			continue
		}
		multiplier := m.multipliers[symbol]
		if pos.quantity > 0 {
			unrealized += (mark - pos.avgPrice) * float64(pos.quantity) * multiplier
		} else {
			unrealized += (pos.avgPrice - mark) * float64(-pos.quantity) * multiplier
		}
	}
	equity := m.balance + unrealized
	info := EquityInfo{Equity: equity, UnrealizedPnL: unrealized}
	if contracts > 0 && m.marginPerContract > 0 {
		info.RiskIndex = equity / (float64(contracts) * m.marginPerContract) * 100
	}
	return info, nil
}

func (m *Mock) Close() error {
	return nil
}

func sameSign(a, b int) bool {
	return (a > 0) == (b > 0)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
