package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "mxf_hedge_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	ordersPlaced  prometheus.Counter
	ordersFailed  prometheus.Counter
	autoCompleted prometheus.Counter
	autoSkipped   prometheus.Counter
	marginBlocked prometheus.Counter
	gridSignals   prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of futures orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	autoCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "auto_runs_completed_total",
		Help:      "Total number of daily auto-trade runs completed.",
	})
	autoSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "auto_runs_skipped_total",
		Help:      "Total number of auto-trade triggers skipped because the day already ran.",
	})
	marginBlocked := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "margin_blocked_total",
		Help:      "Total number of orders blocked by the margin guard.",
	})
	gridSignals := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "grid_signals_total",
		Help:      "Total number of actionable grid signals emitted.",
	})

	registry.MustRegister(ordersPlaced, ordersFailed, autoCompleted, autoSkipped, marginBlocked, gridSignals)

	m := &Metrics{
		OrdersPlaced:      promCounter{ordersPlaced},
		OrdersFailed:      promCounter{ordersFailed},
		AutoRunsCompleted: promCounter{autoCompleted},
		AutoRunsSkipped:   promCounter{autoSkipped},
		MarginBlocked:     promCounter{marginBlocked},
		GridSignals:       promCounter{gridSignals},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		ordersPlaced:  ordersPlaced,
		ordersFailed:  ordersFailed,
		autoCompleted: autoCompleted,
		autoSkipped:   autoSkipped,
		marginBlocked: marginBlocked,
		gridSignals:   gridSignals,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
