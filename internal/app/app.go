package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mxf-hedge-bot/internal/alerts"
	"mxf-hedge-bot/internal/broker"
	"mxf-hedge-bot/internal/config"
	"mxf-hedge-bot/internal/exec"
	"mxf-hedge-bot/internal/market"
	"mxf-hedge-bot/internal/metrics"
	"mxf-hedge-bot/internal/scheduler"
	"mxf-hedge-bot/internal/state"
	"mxf-hedge-bot/internal/state/sqlite"
	"mxf-hedge-bot/internal/strategy"
	"mxf-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

const streamPingInterval = 20 * time.Second

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	market    *market.MarketData
	broker    broker.Broker
	executor  *exec.Executor
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    *alerts.Telegram
	scheduler *scheduler.Scheduler
	timescale *timescale.Writer

	gridLegs []strategy.GridLeg
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	var history *market.HistoryClient
	if cfg.Market.HistoryBaseURL != "" {
		history = market.NewHistoryClient(cfg.Market.HistoryBaseURL, cfg.Market.Timeout, log)
	}
	var stream *market.Stream
	if cfg.Market.QuoteWSURL != "" {
		stream = market.NewStream(cfg.Market.QuoteWSURL, cfg.Market.ReconnectDelay, streamPingInterval, log)
	}
	marketData := market.New(cfg.Market, history, stream, log)

	b, err := newBroker(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var m *metrics.Metrics
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	} else {
		m = metrics.NewNoop()
	}

	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		log.Warn("timescale disabled", zap.Error(err))
	}
	if writer != nil {
		marketData.SetCandleSink(func(c market.Candle) {
			writer.EnqueueCandle(timescale.Candle{
				Symbol: c.Symbol,
				Date:   c.Date,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
		})
	}

	executor := exec.New(b, store, m, log)
	telegram := alerts.NewTelegram(cfg.Telegram, log)

	deps := scheduler.Deps{
		Market:   marketData,
		Broker:   b,
		Executor: executor,
		Store:    store,
		RunLog:   store,
		Alerts:   telegram,
		Metrics:  m,
		Log:      log,
	}
	if writer != nil {
		deps.Sink = writer
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		market:    marketData,
		broker:    b,
		executor:  executor,
		metrics:   m,
		prom:      prom,
		alerts:    telegram,
		scheduler: scheduler.New(cfg, deps),
		timescale: writer,
	}, nil
}

func newBroker(cfg *config.Config, log *zap.Logger) (broker.Broker, error) {
	switch cfg.Broker.Mode {
	case "", "mock":
		mock := broker.NewMock(cfg.Broker.InitialBalance)
		mock.SetMarginPerContract(cfg.Risk.MarginPerContract)
		return mock, nil
	case "gateway":
		if cfg.Broker.GatewayURL == "" {
			return nil, errors.New("broker.gateway_url is required in gateway mode")
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Broker.Timeout)
		defer cancel()
		return broker.DialGateway(ctx, cfg.Broker.GatewayURL, cfg.Broker.Timeout, log)
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Broker.Mode)
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.broker.Close()
	defer a.timescale.Close()

	a.timescale.Start(ctx)
	if a.prom != nil && a.cfg.Metrics.Addr != "" {
		a.serveMetrics(ctx)
	}

	if err := a.market.Start(ctx); err != nil {
		a.log.Warn("market start degraded", zap.Error(err))
	}

	if err := a.restoreState(ctx); err != nil {
		return err
	}

	go func() {
		if err := a.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("scheduler stopped", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(a.cfg.Scheduler.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.gridTick(ctx); err != nil {
				a.log.Warn("grid tick failed", zap.Error(err))
			}
		}
	}
}

// restoreState reloads the grid ledger and reports where the last session
// left off: the prior hedge decision and the last auto-trade run.
func (a *App) restoreState(ctx context.Context) error {
	legs, err := state.LoadGridLegs(ctx, a.store)
	if err != nil {
		return fmt.Errorf("restore grid legs: %w", err)
	}
	a.gridLegs = legs
	a.log.Info("state restored", zap.Int("grid_legs", len(legs)))

	if snap, ok, err := state.LoadHedgeSnapshot(ctx, a.store); err != nil {
		a.log.Warn("hedge snapshot load failed", zap.Error(err))
	} else if ok {
		a.log.Info("last hedge decision",
			zap.String("action", snap.Action),
			zap.Int("target_qty", snap.TargetQty),
			zap.Float64("deviation_pct", snap.DeviationPct),
			zap.Float64("risk_index", snap.RiskIndex),
		)
	}

	if rec, ok, err := a.store.LastRun(ctx); err != nil {
		a.log.Warn("run log read failed", zap.Error(err))
	} else if ok {
		a.log.Info("last auto-trade run",
			zap.String("date", rec.RunDate),
			zap.String("action", rec.Action),
			zap.Int("quantity", rec.Quantity),
		)
	}
	return nil
}

func (a *App) serveMetrics(ctx context.Context) {
	server := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: a.prom.Handler()}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Addr))
}

// gridTick evaluates the mean-reversion grid against the live quote. Exits
// always go through; opens are subject to the margin guard.
func (a *App) gridTick(ctx context.Context) error {
	snap, err := a.market.Snapshot()
	if err != nil {
		if errors.Is(err, market.ErrNoSnapshot) {
			return nil
		}
		return err
	}

	sig := strategy.EvaluateGrid(snap.IndexPrice, snap.MovingAverage, a.gridLegs, a.cfg.Grid)
	if sig.Action == strategy.ActionHold {
		return nil
	}
	a.metrics.GridSignals.Inc()

	isOpen := sig.Action == strategy.ActionBuyOpen || sig.Action == strategy.ActionSellOpen
	if isOpen {
		info, err := a.broker.Equity(ctx)
		if err != nil {
			return err
		}
		pos, err := a.broker.Position(ctx, a.cfg.Broker.FuturesSymbol)
		if err != nil {
			return err
		}
		if err := strategy.CheckMargin(info.RiskIndex, pos.Quantity, a.cfg.Risk); err != nil {
			if errors.Is(err, strategy.ErrRiskBelowMinimum) {
				a.metrics.MarginBlocked.Inc()
				a.log.Warn("grid open blocked", zap.String("action", string(sig.Action)), zap.Error(err))
				return nil
			}
			return err
		}
	}

	order := broker.Order{
		Symbol:   a.cfg.Broker.FuturesSymbol,
		IsBuy:    sig.Action == strategy.ActionBuyOpen || sig.Action == strategy.ActionBuyCover,
		Quantity: 1,
	}
	if _, err := a.executor.PlaceOrder(ctx, order); err != nil {
		return fmt.Errorf("grid %s: %w", sig.Action, err)
	}
	a.log.Info("grid trade",
		zap.String("action", string(sig.Action)),
		zap.Float64("price", sig.Price),
		zap.String("reason", sig.Reason),
	)

	if isOpen {
		side := strategy.SideLong
		if sig.Action == strategy.ActionSellOpen {
			side = strategy.SideShort
		}
		a.gridLegs = append(a.gridLegs, strategy.GridLeg{EntryPrice: snap.IndexPrice, Side: side, OpenedAt: snap.Timestamp})
	} else if sig.MatchedLeg >= 0 && sig.MatchedLeg < len(a.gridLegs) {
		a.gridLegs = append(a.gridLegs[:sig.MatchedLeg], a.gridLegs[sig.MatchedLeg+1:]...)
	}
	if err := state.SaveGridLegs(ctx, a.store, a.gridLegs); err != nil {
		a.log.Warn("grid legs persist failed", zap.Error(err))
	}
	return nil
}
