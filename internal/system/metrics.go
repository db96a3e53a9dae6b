package system

import (
	"sync/atomic"

	coresys "github.com/gearedup/server/internal/core/system"
)

// Metrics counts server loop activity. Written by the loop goroutine and
// read by the HTTP handler.
type Metrics struct {
	TickCount     atomic.Int64
	TotalTickNs   atomic.Int64
	Messages      atomic.Int64 // data items dispatched
	DecodeErrors  atomic.Int64
	Rejected      atomic.Int64 // state-gated or panicking handlers
	SnapshotsSent atomic.Int64

	phaseNs [coresys.PhaseCount]atomic.Int64
}

func (m *Metrics) IncMessages()     { m.Messages.Add(1) }
func (m *Metrics) IncDecodeErrors() { m.DecodeErrors.Add(1) }
func (m *Metrics) IncRejected()     { m.Rejected.Add(1) }
func (m *Metrics) IncSnapshots()    { m.SnapshotsSent.Add(1) }

// AddTick records one finished tick.
func (m *Metrics) AddTick(t coresys.Timings) {
	m.TickCount.Add(1)
	m.TotalTickNs.Add(t.Total().Nanoseconds())
	for i, d := range t {
		m.phaseNs[i].Add(d.Nanoseconds())
	}
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]any {
	tick := m.TickCount.Load()
	avg := func(ns int64) float64 {
		if tick == 0 {
			return 0
		}
		return float64(ns) / float64(tick) / 1e6
	}
	phases := make(map[string]float64, coresys.PhaseCount)
	for i := range m.phaseNs {
		phases[coresys.Phase(i).String()] = avg(m.phaseNs[i].Load())
	}
	return map[string]any{
		"tick_count":     tick,
		"messages":       m.Messages.Load(),
		"decode_errors":  m.DecodeErrors.Load(),
		"rejected":       m.Rejected.Load(),
		"snapshots_sent": m.SnapshotsSent.Load(),
		"avg_tick_ms":    avg(m.TotalTickNs.Load()),
		"avg_phase_ms":   phases,
	}
}
