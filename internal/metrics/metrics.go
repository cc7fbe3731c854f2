package metrics

import "sync/atomic"

// MetricID identifies a specific counter.
type MetricID uint16

const (
	MetricSignInSuccess MetricID = iota
	MetricSignInFailure
	MetricSignUpSuccess
	MetricSignUpRejected
	MetricSignUpProfileMissing
	MetricSignOutSuccess
	MetricSignOutFailure
	MetricSessionRestored
	MetricProfileCreated
	MetricProfileCreateFailed
	MetricProfileRefreshed
	MetricSessionEventApplied
	MetricSessionEventDiscarded
	MetricCodeIssued
	MetricCodeIssueFailed
	MetricCodeRateLimited
	MetricCodeValidateSuccess
	MetricCodeValidateFailure
	MetricAuditDropped

	MetricIDCount
)

// Config controls whether counting is active.
type Config struct {
	Enabled bool
}

// Metrics holds one atomic counter per [MetricID]. A nil or disabled
// instance is a no-op on every method.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{enabled: true}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time deep copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters: make(map[MetricID]uint64, int(MetricIDCount)),
	}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
