package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mxf-hedge-bot/internal/broker"
	"mxf-hedge-bot/internal/metrics"
	"mxf-hedge-bot/internal/state"

	"go.uber.org/zap"
)

// Executor places broker orders with retry and client-order-id idempotency.
// An order carrying a ClientOrderID is placed at most once across restarts;
// the broker order id is cached in memory and persisted to the store.
type Executor struct {
	broker  broker.Broker
	store   state.Store
	metrics *metrics.Metrics
	log     *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

func New(b broker.Broker, store state.Store, m *metrics.Metrics, log *zap.Logger) *Executor {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Executor{
		broker:  b,
		store:   store,
		metrics: m,
		log:     log,
		cache:   make(map[string]string),
	}
}

func (e *Executor) PlaceOrder(ctx context.Context, order broker.Order) (string, error) {
	if order.ClientOrderID == "" {
		return e.placeWithRetry(ctx, order)
	}
	cacheKey := "cloid:" + order.ClientOrderID
	e.mu.Lock()
	if oid, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return oid, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return "", err
		} else if ok {
			e.mu.Lock()
			e.cache[cacheKey] = oid
			e.mu.Unlock()
			return oid, nil
		}
	}
	orderID, err := e.placeWithRetry(ctx, order)
	if err != nil {
		return "", err
	}
	if e.store != nil {
		if err := e.store.Set(ctx, cacheKey, orderID); err != nil {
			e.log.Warn("failed to persist order id", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = orderID
	e.mu.Unlock()
	return orderID, nil
}

func (e *Executor) CancelOrder(ctx context.Context, orderID string) error {
	return e.retry(ctx, func() error {
		return e.broker.CancelOrder(ctx, orderID)
	})
}

func (e *Executor) placeWithRetry(ctx context.Context, order broker.Order) (string, error) {
	var orderID string
	err := e.retry(ctx, func() error {
		var err error
		orderID, err = e.broker.PlaceOrder(ctx, order)
		return err
	})
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return "", err
	}
	if orderID == "" {
		e.metrics.OrdersFailed.Inc()
		return "", errors.New("empty order id")
	}
	e.metrics.OrdersPlaced.Inc()
	return orderID, nil
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err := fn(); err != nil {
			if errors.Is(err, broker.ErrOrderRejected) {
				return err
			}
			if attempt == 4 {
				return fmt.Errorf("retry failed: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return nil
}
