package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// gatewayHandler answers bridge frames the way the real bridge does, so the
// client side of the protocol can be exercised end to end.
func gatewayHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req gatewayRequest
			if err := msgpack.Unmarshal(data, &req); err != nil {
				continue
			}
			resp := gatewayResponse{ID: req.ID, OK: true}
			switch req.Op {
			case "place_order":
				payload, _ := msgpack.Marshal(orderAck{OrderID: "gw-42"})
				resp.Payload = payload
			case "equity":
				payload, _ := msgpack.Marshal(EquityInfo{Equity: 350000, RiskIndex: 612})
				resp.Payload = payload
			case "position":
				payload, _ := msgpack.Marshal(Position{Symbol: "MXF", Quantity: -3, AvgPrice: 14950})
				resp.Payload = payload
			case "cancel_order":
			default:
				resp.OK = false
				resp.Error = "unsupported op"
			}
			out, _ := msgpack.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageBinary, out); err != nil {
				return
			}
		}
	}
}

func dialTestGateway(t *testing.T, server *httptest.Server) *Gateway {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	gw, err := DialGateway(ctx, wsURL, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	return gw
}

func TestGatewayRoundTrips(t *testing.T) {
	server := httptest.NewServer(gatewayHandler(t))
	defer server.Close()
	gw := dialTestGateway(t, server)
	defer gw.Close()

	ctx := context.Background()

	orderID, err := gw.PlaceOrder(ctx, Order{Symbol: "MXF", IsBuy: false, Quantity: 1, ClientOrderID: "c-1"})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if orderID != "gw-42" {
		t.Fatalf("expected order id gw-42, got %s", orderID)
	}

	pos, err := gw.Position(ctx, "MXF")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Quantity != -3 || pos.AvgPrice != 14950 {
		t.Fatalf("unexpected position: %+v", pos)
	}

	info, err := gw.Equity(ctx)
	if err != nil {
		t.Fatalf("equity: %v", err)
	}
	if info.Equity != 350000 || info.RiskIndex != 612 {
		t.Fatalf("unexpected equity: %+v", info)
	}

	if err := gw.CancelOrder(ctx, "gw-42"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestGatewayRejectedOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req gatewayRequest
			if err := msgpack.Unmarshal(data, &req); err != nil {
				continue
			}
			out, _ := msgpack.Marshal(gatewayResponse{ID: req.ID, OK: false, Error: "insufficient margin"})
			if err := conn.Write(ctx, websocket.MessageBinary, out); err != nil {
				return
			}
		}
	}))
	defer server.Close()
	gw := dialTestGateway(t, server)
	defer gw.Close()

	_, err := gw.PlaceOrder(context.Background(), Order{Symbol: "MXF", IsBuy: false, Quantity: 1})
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected ErrOrderRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient margin") {
		t.Fatalf("expected bridge reason in error, got %v", err)
	}
}
