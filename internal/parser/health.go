package parser

import (
	"log/slog"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/timeline"
)

type healthState int

const (
	stateHealthy healthState = iota
	stateFaulty
)

func (s healthState) String() string {
	if s == stateFaulty {
		return "faulty"
	}
	return "healthy"
}

// healthMachine tracks the online state signalled by #start/#stop markers.
// A log starts healthy.
type healthMachine struct {
	log *slog.Logger

	state           healthState
	pendingRecovery bool

	lastHealthy    time.Time
	hasLastHealthy bool

	failures   []string
	recoveries []string
}

// stop takes the meter offline from the next reading on. The last healthy
// reading before the marker is recorded as the failure point.
func (m *healthMachine) stop(line int) {
	if m.state == stateFaulty {
		return
	}
	if m.hasLastHealthy {
		m.failures = append(m.failures, m.lastHealthy.Format(timeline.Layout))
	}
	m.set(stateFaulty, line)
	m.pendingRecovery = false
	m.hasLastHealthy = false
}

// start brings the meter back online. Only a faulty meter arms a recovery.
func (m *healthMachine) start(line int) {
	if m.state == stateHealthy {
		return
	}
	m.set(stateHealthy, line)
	m.pendingRecovery = true
}

func (m *healthMachine) set(to healthState, line int) {
	m.log.Debug("Meter health changed", "from", m.state.String(), "to", to.String(), "line", line)
	m.state = to
}

// observe classifies a parsed reading and returns whether it is healthy.
func (m *healthMachine) observe(ts time.Time) bool {
	if m.state == stateFaulty {
		return false
	}
	if m.pendingRecovery {
		m.recoveries = append(m.recoveries, ts.Format(timeline.Layout))
		m.pendingRecovery = false
	}
	m.lastHealthy = ts
	m.hasLastHealthy = true
	return true
}
