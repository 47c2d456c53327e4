package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Gateway speaks the brokerage bridge protocol: msgpack request/response
// frames over a websocket, correlated by request id. The bridge process owns
// the certificate session with the brokerage; this client only relays intents.
type Gateway struct {
	url     string
	timeout time.Duration
	log     *zap.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[uint64]chan gatewayResponse
	nextID  uint64
	closed  bool
}

type gatewayRequest struct {
	ID      uint64      `msgpack:"id"`
	Op      string      `msgpack:"op"`
	Payload interface{} `msgpack:"payload,omitempty"`
}

type gatewayResponse struct {
	ID      uint64             `msgpack:"id"`
	OK      bool               `msgpack:"ok"`
	Error   string             `msgpack:"error,omitempty"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

type orderAck struct {
	OrderID string `msgpack:"order_id"`
}

type cancelRequest struct {
	OrderID string `msgpack:"order_id"`
}

type positionRequest struct {
	Symbol string `msgpack:"symbol"`
}

func DialGateway(ctx context.Context, url string, timeout time.Duration, log *zap.Logger) (*Gateway, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := &Gateway{
		url:     url,
		timeout: timeout,
		log:     log,
		conn:    conn,
		pending: make(map[uint64]chan gatewayResponse),
	}
	go g.readLoop()
	return g, nil
}

func (g *Gateway) readLoop() {
	for {
		_, data, err := g.conn.Read(context.Background())
		if err != nil {
			g.failPending(err)
			return
		}
		var resp gatewayResponse
		if err := msgpack.Unmarshal(data, &resp); err != nil {
			if g.log != nil {
				g.log.Warn("gateway frame decode failed", zap.Error(err))
			}
			continue
		}
		g.mu.Lock()
		ch, ok := g.pending[resp.ID]
		if ok {
			delete(g.pending, resp.ID)
		}
		g.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (g *Gateway) failPending(err error) {
	if g.log != nil {
		g.log.Warn("gateway connection lost", zap.String("url", g.url), zap.Error(err))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for id, ch := range g.pending {
		delete(g.pending, id)
		ch <- gatewayResponse{ID: id, OK: false, Error: err.Error()}
	}
}

func (g *Gateway) call(ctx context.Context, op string, payload interface{}, result interface{}) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGatewayClosed
	}
	g.nextID++
	id := g.nextID
	ch := make(chan gatewayResponse, 1)
	g.pending[id] = ch
	g.mu.Unlock()

	data, err := msgpack.Marshal(gatewayRequest{ID: id, Op: op, Payload: payload})
	if err != nil {
		g.dropPending(id)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.writeMu.Lock()
	err = g.conn.Write(ctx, websocket.MessageBinary, data)
	g.writeMu.Unlock()
	if err != nil {
		g.dropPending(id)
		return err
	}

	select {
	case <-ctx.Done():
		g.dropPending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrRequestTimeout, op)
		}
		return ctx.Err()
	case resp := <-ch:
		if !resp.OK {
			if op == "place_order" {
				return fmt.Errorf("%w: %s", ErrOrderRejected, resp.Error)
			}
			return fmt.Errorf("broker: %s failed: %s", op, resp.Error)
		}
		if result != nil && len(resp.Payload) > 0 {
			return msgpack.Unmarshal(resp.Payload, result)
		}
		return nil
	}
}

func (g *Gateway) dropPending(id uint64) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

func (g *Gateway) PlaceOrder(ctx context.Context, order Order) (string, error) {
	var ack orderAck
	if err := g.call(ctx, "place_order", order, &ack); err != nil {
		return "", err
	}
	if ack.OrderID == "" {
		return "", errors.New("broker: gateway returned empty order id")
	}
	return ack.OrderID, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	return g.call(ctx, "cancel_order", cancelRequest{OrderID: orderID}, nil)
}

func (g *Gateway) Position(ctx context.Context, symbol string) (Position, error) {
	var pos Position
	if err := g.call(ctx, "position", positionRequest{Symbol: symbol}, &pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

func (g *Gateway) Equity(ctx context.Context) (EquityInfo, error) {
	var info EquityInfo
	if err := g.call(ctx, "equity", nil, &info); err != nil {
		return EquityInfo{}, err
	}
	return info, nil
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return g.conn.Close(websocket.StatusNormalClosure, "shutdown")
}
