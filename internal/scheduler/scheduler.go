package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mxf-hedge-bot/internal/alerts"
	"mxf-hedge-bot/internal/broker"
	"mxf-hedge-bot/internal/config"
	"mxf-hedge-bot/internal/metrics"
	"mxf-hedge-bot/internal/state"
	"mxf-hedge-bot/internal/state/sqlite"
	"mxf-hedge-bot/internal/strategy"
	"mxf-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

const lastRunKey = "scheduler:last_run_date"

// SnapshotSource serves the market state a hedge evaluation needs and
// accepts the settled close back once the day's run is done.
type SnapshotSource interface {
	Snapshot() (strategy.MarketSnapshot, error)
	Quote(symbol string) (float64, bool)
	AppendDailyClose(close float64)
}

// OrderPlacer places orders, typically the retrying executor.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order broker.Order) (string, error)
}

// Notifier sends human-facing alerts.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// RunLog records completed auto-trade runs.
type RunLog interface {
	RecordRun(ctx context.Context, rec sqlite.RunRecord) error
}

// SnapshotSink receives hedge evaluation rows for long-term storage.
type SnapshotSink interface {
	EnqueueHedge(snapshot timescale.HedgeSnapshot)
}

// Scheduler runs the hedge evaluation once per trading day. The gate is a
// date string persisted in the store, checked and advanced under a mutex, so
// a timer tick and a manual trigger cannot both trade the same day.
type Scheduler struct {
	cfg      config.SchedulerConfig
	hedgeCfg config.HedgeConfig
	riskCfg  config.RiskConfig

	futuresSymbol string
	etfSymbol     string

	market   SnapshotSource
	broker   broker.Broker
	executor OrderPlacer
	store    state.Store
	runLog   RunLog
	alerts   Notifier
	sink     SnapshotSink
	metrics  *metrics.Metrics
	log      *zap.Logger

	now func() time.Time

	mu sync.Mutex
}

type Deps struct {
	Market   SnapshotSource
	Broker   broker.Broker
	Executor OrderPlacer
	Store    state.Store
	RunLog   RunLog
	Alerts   Notifier
	Sink     SnapshotSink
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

func New(cfg *config.Config, deps Deps) *Scheduler {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cfg:           cfg.Scheduler,
		hedgeCfg:      cfg.Hedge,
		riskCfg:       cfg.Risk,
		futuresSymbol: cfg.Broker.FuturesSymbol,
		etfSymbol:     cfg.Market.ETFSymbol,
		market:        deps.Market,
		broker:        deps.Broker,
		executor:      deps.Executor,
		store:         deps.Store,
		runLog:        deps.RunLog,
		alerts:        deps.Alerts,
		sink:          deps.Sink,
		metrics:       m,
		log:           log,
		now:           time.Now,
	}
}

// Run ticks until ctx is done, firing the daily evaluation once the wall
// clock passes the configured run time.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.due(s.now()) {
				continue
			}
			if _, err := s.TryRun(ctx); err != nil {
				s.log.Error("auto-trade run failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) due(now time.Time) bool {
	return now.Format("15:04") >= s.cfg.RunAt
}

// TryRun executes the daily hedge evaluation if it has not yet run today.
// It returns false when the day's run already happened.
func (s *Scheduler) TryRun(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().Format("2006-01-02")
	if s.store != nil {
		last, ok, err := s.store.Get(ctx, lastRunKey)
		if err != nil {
			return false, err
		}
		if ok && last == today {
			s.metrics.AutoRunsSkipped.Inc()
			s.log.Debug("auto-trade already ran", zap.String("date", today))
			return false, nil
		}
	}

	if err := s.runOnce(ctx, today); err != nil {
		return false, err
	}

	if s.store != nil {
		if err := s.store.Set(ctx, lastRunKey, today); err != nil {
			return true, fmt.Errorf("persist last run date: %w", err)
		}
	}
	s.metrics.AutoRunsCompleted.Inc()
	return true, nil
}

func (s *Scheduler) runOnce(ctx context.Context, today string) error {
	snap, err := s.market.Snapshot()
	if err != nil {
		return err
	}
	etfPrice, ok := s.market.Quote(s.etfSymbol)
	if !ok || etfPrice <= 0 {
		return fmt.Errorf("no quote for %s", s.etfSymbol)
	}
	pos, err := s.broker.Position(ctx, s.futuresSymbol)
	if err != nil {
		return err
	}
	currentShort := 0
	if pos.Quantity < 0 {
		currentShort = -pos.Quantity
	}

	exposure := strategy.ExposureFacts{
		ETFQuantity: s.hedgeCfg.ETFQuantity,
		ETFPrice:    etfPrice,
	}
	decision, err := strategy.EvaluateHedge(snap, exposure, currentShort, s.hedgeCfg)
	if err != nil {
		return err
	}

	info, err := s.broker.Equity(ctx)
	if err != nil {
		return err
	}
	risk, _ := strategy.RiskIndex(info.RiskIndex, pos.Quantity, s.riskCfg.ManualEquity, s.riskCfg.MarginPerContract)

	s.log.Info("hedge evaluated",
		zap.String("action", string(decision.Action)),
		zap.Int("quantity", decision.Quantity),
		zap.Float64("deviation_pct", decision.DeviationPercent),
		zap.Float64("risk_index", risk),
	)

	blocked := false
	if decision.Action != strategy.ActionHold {
		if err := strategy.CheckMargin(info.RiskIndex, pos.Quantity, s.riskCfg); err != nil {
			if !errors.Is(err, strategy.ErrRiskBelowMinimum) {
				return err
			}
			s.metrics.MarginBlocked.Inc()
			s.record(ctx, today, "BLOCKED", 0, risk, err.Error())
			s.notify(ctx, fmt.Sprintf("auto-trade blocked: %v", err))
			blocked = true
		}
		if !blocked {
			order := broker.Order{
				Symbol:        s.futuresSymbol,
				IsBuy:         decision.Action == strategy.ActionCover,
				Quantity:      decision.Quantity,
				ClientOrderID: "auto-" + today,
			}
			if _, err := s.executor.PlaceOrder(ctx, order); err != nil {
				return fmt.Errorf("place %s %d: %w", decision.Action, decision.Quantity, err)
			}
		}
	}

	if !blocked {
		s.record(ctx, today, string(decision.Action), decision.Quantity, risk, decision.Reason)
		s.saveSnapshot(ctx, snap, decision, risk)
		if s.sink != nil {
			s.sink.EnqueueHedge(timescale.HedgeSnapshot{
				Time:            s.now().UTC(),
				Action:          string(decision.Action),
				IndexPrice:      snap.IndexPrice,
				MovingAverage:   snap.MovingAverage,
				DeviationPct:    decision.DeviationPercent,
				TargetRatio:     decision.TargetRatio,
				TargetQty:       decision.TargetQty,
				CurrentShortQty: decision.CurrentShortQty,
				ETFPrice:        etfPrice,
				Equity:          info.Equity,
				RiskIndex:       risk,
			})
		}
		s.notify(ctx, alerts.FormatDecision(decision))
	}

	// The run fires at session close, so the quoted index price is the
	// settled daily close; fold it into the moving-average window.
	s.market.AppendDailyClose(snap.IndexPrice)
	return nil
}

func (s *Scheduler) record(ctx context.Context, today, action string, qty int, risk float64, reason string) {
	if s.runLog == nil {
		return
	}
	rec := sqlite.RunRecord{RunDate: today, Action: action, Quantity: qty, RiskIndex: risk, Reason: reason}
	if err := s.runLog.RecordRun(ctx, rec); err != nil {
		s.log.Warn("run log write failed", zap.Error(err))
	}
}

func (s *Scheduler) saveSnapshot(ctx context.Context, snap strategy.MarketSnapshot, decision strategy.Decision, risk float64) {
	if s.store == nil {
		return
	}
	snapshot := state.HedgeSnapshot{
		Action:          string(decision.Action),
		IndexPrice:      snap.IndexPrice,
		MovingAverage:   snap.MovingAverage,
		DeviationPct:    decision.DeviationPercent,
		TargetRatio:     decision.TargetRatio,
		TargetQty:       decision.TargetQty,
		CurrentShortQty: decision.CurrentShortQty,
		RiskIndex:       risk,
		UpdatedAtMS:     s.now().UnixMilli(),
	}
	if err := state.SaveHedgeSnapshot(ctx, s.store, snapshot); err != nil {
		s.log.Warn("hedge snapshot write failed", zap.Error(err))
	}
}

func (s *Scheduler) notify(ctx context.Context, message string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Send(ctx, message); err != nil {
		s.log.Warn("alert send failed", zap.Error(err))
	}
}
