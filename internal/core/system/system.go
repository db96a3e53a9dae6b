package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput  Phase = iota // 0: drain the transport queue
	PhaseUpdate              // 1: advance the simulation
	PhaseOutput              // 2: build + send snapshots

	PhaseCount = 3
)

var phaseNames = [PhaseCount]string{"input", "update", "output"}

func (p Phase) String() string {
	if p >= 0 && p < PhaseCount {
		return phaseNames[p]
	}
	return "unknown"
}

// System is one stage of the server tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
