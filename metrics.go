package bfq

import "sync/atomic"

// Metrics tracks performance and operational statistics for a Scheduler.
type Metrics struct {
	Dispatches   atomic.Uint64
	Expirations  atomic.Uint64

	ExpireTooIdle         atomic.Uint64
	ExpireBudgetTimeout   atomic.Uint64
	ExpireBudgetExhausted atomic.Uint64
	ExpireNoMoreRequests  atomic.Uint64

	IdleTimerArmed atomic.Uint64
	IdleTimerFired atomic.Uint64

	BudgetSectorsGranted  atomic.Uint64
	SectorsServed         atomic.Uint64

	NCQSamples  atomic.Uint64
	PeakRateSamples atomic.Uint64
}

// NewMetrics creates a zeroed metrics instance.
func NewMetrics() *Metrics { return &Metrics{} }

// RecordExpiration increments the per-reason expiration counters.
func (m *Metrics) RecordExpiration(reason ExpireReason) {
	m.Expirations.Add(1)
	switch reason {
	case ExpireTooIdle:
		m.ExpireTooIdle.Add(1)
	case ExpireBudgetTimeout:
		m.ExpireBudgetTimeout.Add(1)
	case ExpireBudgetExhausted:
		m.ExpireBudgetExhausted.Add(1)
	case ExpireNoMoreRequests:
		m.ExpireNoMoreRequests.Add(1)
	}
}

// RecordDispatch increments dispatch counters with the sectors served.
func (m *Metrics) RecordDispatch(sectors int64) {
	m.Dispatches.Add(1)
	m.SectorsServed.Add(uint64(sectors))
}

// RecordBudgetGrant tracks a newly assigned queue budget.
func (m *Metrics) RecordBudgetGrant(sectors int64) {
	m.BudgetSectorsGranted.Add(uint64(sectors))
}

// RecordIdleArm records an idle-timer arming.
func (m *Metrics) RecordIdleArm() { m.IdleTimerArmed.Add(1) }

// RecordIdleFire records an idle-timer firing.
func (m *Metrics) RecordIdleFire() { m.IdleTimerFired.Add(1) }

// RecordNCQSample records a hw_tag detection sample.
func (m *Metrics) RecordNCQSample() { m.NCQSamples.Add(1) }

// RecordPeakRateSample records a peak-rate estimator sample.
func (m *Metrics) RecordPeakRateSample() { m.PeakRateSamples.Add(1) }

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read without
// racing further updates.
type MetricsSnapshot struct {
	Dispatches            uint64
	Expirations           uint64
	ExpireTooIdle         uint64
	ExpireBudgetTimeout   uint64
	ExpireBudgetExhausted uint64
	ExpireNoMoreRequests  uint64
	IdleTimerArmed        uint64
	IdleTimerFired        uint64
	BudgetSectorsGranted  uint64
	SectorsServed         uint64
	NCQSamples            uint64
	PeakRateSamples       uint64
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Dispatches:            m.Dispatches.Load(),
		Expirations:           m.Expirations.Load(),
		ExpireTooIdle:         m.ExpireTooIdle.Load(),
		ExpireBudgetTimeout:   m.ExpireBudgetTimeout.Load(),
		ExpireBudgetExhausted: m.ExpireBudgetExhausted.Load(),
		ExpireNoMoreRequests:  m.ExpireNoMoreRequests.Load(),
		IdleTimerArmed:        m.IdleTimerArmed.Load(),
		IdleTimerFired:        m.IdleTimerFired.Load(),
		BudgetSectorsGranted:  m.BudgetSectorsGranted.Load(),
		SectorsServed:         m.SectorsServed.Load(),
		NCQSamples:            m.NCQSamples.Load(),
		PeakRateSamples:       m.PeakRateSamples.Load(),
	}
}

// Observer allows pluggable metrics collection, so a caller can forward
// scheduler events into its own observability stack instead of the
// built-in Metrics.
type Observer interface {
	ObserveDispatch(sectors int64)
	ObserveExpiration(reason ExpireReason)
	ObserveBudgetGrant(sectors int64)
	ObserveIdleArm()
	ObserveIdleFire()
	ObserveNCQSample()
	ObservePeakRateSample()
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveDispatch(int64)           {}
func (NoOpObserver) ObserveExpiration(ExpireReason)  {}
func (NoOpObserver) ObserveBudgetGrant(int64)        {}
func (NoOpObserver) ObserveIdleArm()                 {}
func (NoOpObserver) ObserveIdleFire()                {}
func (NoOpObserver) ObserveNCQSample()               {}
func (NoOpObserver) ObservePeakRateSample()           {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveDispatch(sectors int64)    { o.metrics.RecordDispatch(sectors) }
func (o *MetricsObserver) ObserveExpiration(r ExpireReason) { o.metrics.RecordExpiration(r) }
func (o *MetricsObserver) ObserveBudgetGrant(sectors int64) { o.metrics.RecordBudgetGrant(sectors) }
func (o *MetricsObserver) ObserveIdleArm()                  { o.metrics.RecordIdleArm() }
func (o *MetricsObserver) ObserveIdleFire()                 { o.metrics.RecordIdleFire() }
func (o *MetricsObserver) ObserveNCQSample()                { o.metrics.RecordNCQSample() }
func (o *MetricsObserver) ObservePeakRateSample()           { o.metrics.RecordPeakRateSample() }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
