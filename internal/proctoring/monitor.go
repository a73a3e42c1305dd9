// Package proctoring accumulates integrity violations reported by the browser
// and turns them into a strike count and a disqualification verdict.
package proctoring

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/spigell/screener/internal/interview"
)

const DefaultThreshold = 3

// Verdict is the monitor state after an event or on demand.
type Verdict struct {
	Strikes      int
	Threshold    int
	Disqualified bool
	// Counted is false when the event arrived while the monitor was not armed.
	Counted bool
}

// Remaining returns the number of strikes left before disqualification.
func (v Verdict) Remaining() int {
	if v.Disqualified {
		return 0
	}
	return v.Threshold - v.Strikes
}

// Monitor is safe for concurrent use. It is independent of the session lock so
// events are applied as soon as they arrive.
type Monitor struct {
	mu           sync.Mutex
	threshold    int
	armed        bool
	sealed       bool
	strikes      int
	disqualified bool
	events       []interview.ProctoringEvent
}

func New(threshold int) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{threshold: threshold}
}

// Arm starts counting events. It is called once the interview becomes active.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sealed {
		m.armed = true
	}
}

// Seal stops counting for good. Later events are ignored.
func (m *Monitor) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
	m.sealed = true
}

// Record applies an event. Events are never deduplicated: two events with the
// same timestamp are two strikes.
func (m *Monitor) Record(event interview.ProctoringEvent) (Verdict, error) {
	if _, err := interview.ParseEventKind(string(event.Kind)); err != nil {
		return m.Status(), fmt.Errorf("%w: %q", err, event.Kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed || m.disqualified {
		return m.verdictLocked(false), nil
	}

	m.events = append(m.events, event)
	m.strikes++
	if m.strikes >= m.threshold {
		m.disqualified = true
	}

	return m.verdictLocked(true), nil
}

// RecordKind is a shorthand for Record with the current time.
func (m *Monitor) RecordKind(kind interview.EventKind, at time.Time) (Verdict, error) {
	return m.Record(interview.ProctoringEvent{Kind: kind, Timestamp: at})
}

func (m *Monitor) Status() Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verdictLocked(false)
}

// Events returns the counted events in arrival order.
func (m *Monitor) Events() []interview.ProctoringEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

func (m *Monitor) verdictLocked(counted bool) Verdict {
	return Verdict{
		Strikes:      m.strikes,
		Threshold:    m.threshold,
		Disqualified: m.disqualified,
		Counted:      counted,
	}
}
