package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced      Counter
	OrdersFailed      Counter
	AutoRunsCompleted Counter
	AutoRunsSkipped   Counter
	MarginBlocked     Counter
	GridSignals       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:      n,
		OrdersFailed:      n,
		AutoRunsCompleted: n,
		AutoRunsSkipped:   n,
		MarginBlocked:     n,
		GridSignals:       n,
	}
}
