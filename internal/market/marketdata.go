package market

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"mxf-hedge-bot/internal/config"
	"mxf-hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

var ErrNoSnapshot = errors.New("market: snapshot not ready")

// MarketData tracks live quotes over the stream and keeps a rolling window of
// index closes, seeded from history, to serve moving-average snapshots.
type MarketData struct {
	history *HistoryClient
	stream  *Stream
	log     *zap.Logger

	indexSymbol string
	etfSymbol   string
	maPeriod    int

	candleSink func(Candle)

	mu         sync.RWMutex
	quotes     map[string]float64
	quoteTimes map[string]time.Time
	closes     []float64
}

func New(cfg config.MarketConfig, history *HistoryClient, stream *Stream, log *zap.Logger) *MarketData {
	return &MarketData{
		history:     history,
		stream:      stream,
		log:         log,
		indexSymbol: cfg.IndexSymbol,
		etfSymbol:   cfg.ETFSymbol,
		maPeriod:    cfg.MAPeriod,
		quotes:      make(map[string]float64),
		quoteTimes:  make(map[string]time.Time),
	}
}

// SetCandleSink registers a callback invoked for every daily candle fetched
// while seeding history. Call before Start.
func (m *MarketData) SetCandleSink(sink func(Candle)) {
	m.candleSink = sink
}

// Start seeds the moving-average window from history, subscribes to the quote
// feed, and runs the stream until ctx is done.
func (m *MarketData) Start(ctx context.Context) error {
	if err := m.SeedHistory(ctx); err != nil {
		return err
	}
	if m.stream == nil {
		return nil
	}
	if err := m.stream.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{"method": "subscribe", "symbols": []string{m.indexSymbol, m.etfSymbol}}
	if err := m.stream.Subscribe(ctx, sub); err != nil {
		return err
	}
	go func() {
		_ = m.stream.Run(ctx, m.handleMessage)
	}()
	return nil
}

// SeedHistory loads daily index closes so the moving average is available
// before the first live quote arrives.
func (m *MarketData) SeedHistory(ctx context.Context) error {
	if m.history == nil {
		return nil
	}
	candles, err := m.history.DailyCandles(ctx, m.indexSymbol, m.maPeriod*2)
	if err != nil {
		return err
	}
	closes := make([]float64, 0, len(candles))
	for _, candle := range candles {
		closes = append(closes, candle.Close)
	}
	m.mu.Lock()
	m.closes = trimWindow(closes, m.maPeriod)
	if len(candles) > 0 {
		last := candles[len(candles)-1]
		m.quotes[m.indexSymbol] = last.Close
		m.quoteTimes[m.indexSymbol] = last.Date
	}
	m.mu.Unlock()
	if m.candleSink != nil {
		for _, candle := range candles {
			m.candleSink(candle)
		}
	}
	m.seedETFQuote(ctx)
	return nil
}

// seedETFQuote primes the ETF quote from its last daily close so the hedge
// evaluation can run before (or without) a live feed. Failure is non-fatal;
// the stream fills the quote in later.
func (m *MarketData) seedETFQuote(ctx context.Context) {
	if m.etfSymbol == "" || m.etfSymbol == m.indexSymbol {
		return
	}
	candles, err := m.history.DailyCandles(ctx, m.etfSymbol, 10)
	if err != nil {
		if m.log != nil {
			m.log.Warn("etf quote seed failed", zap.Error(err))
		}
		return
	}
	m.SetQuote(m.etfSymbol, candles[len(candles)-1].Close)
}

func (m *MarketData) handleMessage(raw json.RawMessage) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if stringFromMap(payload, "type", "channel") != "quote" {
		return
	}
	symbol := stringFromMap(payload, "symbol", "s")
	price := floatFromMap(payload, "price", "last", "p")
	if symbol == "" || price <= 0 {
		return
	}
	m.mu.Lock()
	m.quotes[symbol] = price
	m.quoteTimes[symbol] = time.Now()
	m.mu.Unlock()
}

// AppendDailyClose folds a settled daily close into the MA window. The
// scheduler calls this after each daily evaluation so the window keeps
// advancing over a long-running process.
func (m *MarketData) AppendDailyClose(close float64) {
	if close <= 0 {
		return
	}
	m.mu.Lock()
	m.closes = trimWindow(append(m.closes, close), m.maPeriod)
	m.mu.Unlock()
}

// SetQuote injects a price directly, bypassing the stream. Paper trading and
// manual runs use it when no feed is attached.
func (m *MarketData) SetQuote(symbol string, price float64) {
	if symbol == "" || price <= 0 {
		return
	}
	m.mu.Lock()
	m.quotes[symbol] = price
	m.quoteTimes[symbol] = time.Now()
	m.mu.Unlock()
}

// Quote returns the latest price seen for symbol.
func (m *MarketData) Quote(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.quotes[symbol]
	return price, ok
}

// Snapshot combines the live index quote with the rolling moving average.
func (m *MarketData) Snapshot() (strategy.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.quotes[m.indexSymbol]
	if !ok || price <= 0 {
		return strategy.MarketSnapshot{}, ErrNoSnapshot
	}
	if len(m.closes) < m.maPeriod || m.maPeriod <= 0 {
		return strategy.MarketSnapshot{}, ErrNoSnapshot
	}
	var sum float64
	for _, c := range m.closes[len(m.closes)-m.maPeriod:] {
		sum += c
	}
	ts := m.quoteTimes[m.indexSymbol]
	if ts.IsZero() {
		ts = time.Now()
	}
	return strategy.MarketSnapshot{
		IndexPrice:    price,
		MovingAverage: sum / float64(m.maPeriod),
		Timestamp:     ts,
	}, nil
}

func trimWindow(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) <= period {
		return closes
	}
	return closes[len(closes)-period:]
}
