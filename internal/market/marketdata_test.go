package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mxf-hedge-bot/internal/config"

	"go.uber.org/zap"
)

func testMarketData(maPeriod int) *MarketData {
	cfg := config.MarketConfig{IndexSymbol: "^TWII", ETFSymbol: "00631L.TW", MAPeriod: maPeriod}
	return New(cfg, nil, nil, zap.NewNop())
}

func TestSnapshotNotReady(t *testing.T) {
	md := testMarketData(3)
	if _, err := md.Snapshot(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestHandleMessageUpdatesQuote(t *testing.T) {
	md := testMarketData(3)
	md.handleMessage(json.RawMessage(`{"type":"quote","symbol":"^TWII","price":17950.5}`))
	price, ok := md.Quote("^TWII")
	if !ok || price != 17950.5 {
		t.Fatalf("expected quote 17950.5, got %f (ok=%v)", price, ok)
	}

	// Non-quote frames and zero prices are ignored.
	md.handleMessage(json.RawMessage(`{"type":"heartbeat"}`))
	md.handleMessage(json.RawMessage(`{"type":"quote","symbol":"^TWII","price":0}`))
	price, _ = md.Quote("^TWII")
	if price != 17950.5 {
		t.Fatalf("expected quote unchanged, got %f", price)
	}
}

func TestSeedHistoryPrimesQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartFixture))
	}))
	defer server.Close()

	cfg := config.MarketConfig{IndexSymbol: "^TWII", ETFSymbol: "00631L.TW", MAPeriod: 2}
	history := NewHistoryClient(server.URL, 2*time.Second, zap.NewNop())
	md := New(cfg, history, nil, zap.NewNop())

	if err := md.SeedHistory(context.Background()); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	price, ok := md.Quote("^TWII")
	if !ok || price != 17950.25 {
		t.Fatalf("expected index quote from last close, got %f (ok=%v)", price, ok)
	}
	// The ETF quote is primed too, so a hedge run can fire without a feed.
	price, ok = md.Quote("00631L.TW")
	if !ok || price != 17950.25 {
		t.Fatalf("expected etf quote from last close, got %f (ok=%v)", price, ok)
	}

	snap, err := md.Snapshot()
	if err != nil {
		t.Fatalf("snapshot after seed: %v", err)
	}
	if snap.MovingAverage != (17880.0+17950.25)/2 {
		t.Fatalf("unexpected MA after seed: %f", snap.MovingAverage)
	}
}

func TestSnapshotUsesRollingAverage(t *testing.T) {
	md := testMarketData(3)
	md.AppendDailyClose(15000)
	md.AppendDailyClose(15100)
	md.AppendDailyClose(15200)
	md.handleMessage(json.RawMessage(`{"type":"quote","symbol":"^TWII","price":14700}`))

	snap, err := md.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.MovingAverage != 15100 {
		t.Fatalf("expected MA 15100, got %f", snap.MovingAverage)
	}
	if snap.IndexPrice != 14700 {
		t.Fatalf("expected index 14700, got %f", snap.IndexPrice)
	}

	// The window slides: a fourth close drops the oldest.
	md.AppendDailyClose(15300)
	snap, _ = md.Snapshot()
	if snap.MovingAverage != 15200 {
		t.Fatalf("expected MA 15200 after slide, got %f", snap.MovingAverage)
	}
}
