package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

var ErrNoCandles = errors.New("market: no candles in response")

// HistoryClient fetches daily candles from a chart endpoint shaped like
// Yahoo Finance's: /v8/finance/chart/{symbol} with timestamp and quote
// arrays. Null entries (untraded days) are dropped.
type HistoryClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewHistoryClient(baseURL string, timeout time.Duration, log *zap.Logger) *HistoryClient {
	return &HistoryClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// DailyCandles returns up to `days` daily candles for symbol, oldest first.
func (c *HistoryClient) DailyCandles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	if symbol == "" {
		return nil, errors.New("market: symbol is required")
	}
	if days <= 0 {
		days = 365
	}
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%dd&interval=1d", c.baseURL, url.PathEscape(symbol), days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("market: http %d: %s", resp.StatusCode, string(body))
	}
	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return parseChart(payload, symbol)
}

func parseChart(payload any, symbol string) ([]Candle, error) {
	chart, ok := mapAtPath(payload, "chart")
	if !ok {
		return nil, ErrNoCandles
	}
	if errMap, ok := toMap(chart["error"]); ok {
		return nil, fmt.Errorf("market: chart error: %s", stringFromMap(errMap, "description", "code"))
	}
	result, ok := firstOfSlice(chart["result"])
	if !ok {
		return nil, ErrNoCandles
	}
	resultMap, ok := toMap(result)
	if !ok {
		return nil, ErrNoCandles
	}
	timestamps := int64SliceFromAny(resultMap["timestamp"])
	quote, ok := mapAtPath(resultMap, "indicators")
	if !ok {
		return nil, ErrNoCandles
	}
	quoteMap, ok := firstOfSlice(quote["quote"])
	if !ok {
		return nil, ErrNoCandles
	}
	q, ok := toMap(quoteMap)
	if !ok {
		return nil, ErrNoCandles
	}
	opens := floatSliceFromAny(q["open"])
	highs := floatSliceFromAny(q["high"])
	lows := floatSliceFromAny(q["low"])
	closes := floatSliceFromAny(q["close"])
	volumes := floatSliceFromAny(q["volume"])

	candles := make([]Candle, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) || closes[i] == 0 {
			continue
		}
		candle := Candle{
			Symbol: symbol,
			Date:   time.Unix(ts, 0).UTC(),
			Close:  closes[i],
		}
		if i < len(opens) {
			candle.Open = opens[i]
		}
		if i < len(highs) {
			candle.High = highs[i]
		}
		if i < len(lows) {
			candle.Low = lows[i]
		}
		if i < len(volumes) {
			candle.Volume = volumes[i]
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return candles, nil
}
