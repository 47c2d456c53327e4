package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"mxf-hedge-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type Candle struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// HedgeSnapshot is one hedge evaluation row for the dashboard history.
type HedgeSnapshot struct {
	Time            time.Time
	Action          string
	IndexPrice      float64
	MovingAverage   float64
	DeviationPct    float64
	TargetRatio     float64
	TargetQty       int
	CurrentShortQty int
	ETFPrice        float64
	Equity          float64
	RiskIndex       float64
}

// Writer persists candles and hedge evaluations to TimescaleDB off the hot
// path. Enqueue never blocks; rows are dropped when the queue is full.
type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	hedges     chan HedgeSnapshot
	candles    chan Candle
	started    atomic.Bool
	dropHedge  atomic.Uint64
	dropCandle atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		hedges:  make(chan HedgeSnapshot, queueSize),
		candles: make(chan Candle, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueHedge(snapshot HedgeSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.hedges <- snapshot:
		return
	default:
		if w.dropHedge.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale hedge queue full")
		}
	}
}

func (w *Writer) EnqueueCandle(candle Candle) {
	if w == nil {
		return
	}
	select {
	case w.candles <- candle:
		return
	default:
		if w.dropCandle.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale candle queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.hedges:
			w.writeHedge(ctx, snap)
		case candle := <-w.candles:
			w.writeCandle(ctx, candle)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (ts, symbol)
	)`, w.table("daily_candles"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		action TEXT NOT NULL,
		index_price DOUBLE PRECISION NOT NULL,
		moving_average DOUBLE PRECISION NOT NULL,
		deviation_pct DOUBLE PRECISION NOT NULL,
		target_ratio DOUBLE PRECISION NOT NULL,
		target_qty INTEGER NOT NULL,
		current_short_qty INTEGER NOT NULL,
		etf_price DOUBLE PRECISION NOT NULL,
		equity DOUBLE PRECISION NOT NULL,
		risk_index DOUBLE PRECISION NOT NULL
	)`, w.table("hedge_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("daily_candles"))); err != nil && w.log != nil {
		w.log.Warn("timescale daily_candles hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("hedge_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("timescale hedge_snapshots hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeHedge(ctx context.Context, snap HedgeSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, action, index_price, moving_average, deviation_pct, target_ratio,
		target_qty, current_short_qty, etf_price, equity, risk_index
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	)`, w.table("hedge_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Action,
		snap.IndexPrice,
		snap.MovingAverage,
		snap.DeviationPct,
		snap.TargetRatio,
		snap.TargetQty,
		snap.CurrentShortQty,
		snap.ETFPrice,
		snap.Equity,
		snap.RiskIndex,
	); err != nil && w.log != nil {
		w.log.Warn("timescale hedge insert failed", zap.Error(err))
	}
}

func (w *Writer) writeCandle(ctx context.Context, candle Candle) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, open, high, low, close, volume
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7
	)
	ON CONFLICT (ts, symbol) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume`, w.table("daily_candles"))
	if _, err := w.db.ExecContext(ctx, query,
		candle.Date,
		candle.Symbol,
		candle.Open,
		candle.High,
		candle.Low,
		candle.Close,
		candle.Volume,
	); err != nil && w.log != nil {
		w.log.Warn("timescale candle upsert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
