package system

import (
	"sort"
	"time"
)

// Timings is the wall time one tick spent in each phase.
type Timings [PhaseCount]time.Duration

func (t Timings) Total() time.Duration {
	var sum time.Duration
	for _, d := range t {
		sum += d
	}
	return sum
}

// Runner executes systems in phase order each tick. Systems sharing a
// phase run in registration order.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 4),
	}
}

func (r *Runner) Register(s System) {
	if p := s.Phase(); p < 0 || p >= PhaseCount {
		panic("system: phase out of range: " + p.String())
	}
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once and reports where the time went.
func (r *Runner) Tick(dt time.Duration) Timings {
	r.ensureSorted()
	var t Timings
	for _, s := range r.systems {
		start := time.Now()
		s.Update(dt)
		t[s.Phase()] += time.Since(start)
	}
	return t
}

// TickPhase runs only the systems of one phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
