// Package convergence decides when the type vocabulary has stabilised.
//
// A Tracker keeps the most recent similarity scores for the entity and
// relation dimensions in two fixed-size windows. The vocabulary counts as
// converged only while both windows are full and every score in them meets
// the threshold.
package convergence

import (
	"fmt"
	"sync"
)

const (
	// DefaultWindow is the number of consecutive documents considered.
	DefaultWindow = 10
	// DefaultThreshold is the minimum score every windowed entry must reach.
	DefaultThreshold = 0.9
)

// Tracker owns the two score windows. It is safe for concurrent use; Record
// advances both windows under one lock so they never differ in length.
type Tracker struct {
	mu        sync.Mutex
	window    int
	threshold float64
	entity    ring
	relation  ring
}

// NewTracker returns a Tracker with the given window size and threshold.
// Non-positive values fall back to the defaults.
func NewTracker(window int, threshold float64) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		window:    window,
		threshold: threshold,
		entity:    newRing(window),
		relation:  newRing(window),
	}
}

// Record pushes one score per dimension, evicting the oldest entries once
// the windows are full.
func (t *Tracker) Record(entityScore, relationScore float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entity.push(entityScore)
	t.relation.push(relationScore)
}

// Converged reports whether both windows are full and every entry in both
// is at or above the threshold. It is derived from the windows on every
// call and never cached.
func (t *Tracker) Converged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.converged()
}

func (t *Tracker) converged() bool {
	if t.entity.len() < t.window || t.relation.len() < t.window {
		return false
	}
	return t.entity.allAtLeast(t.threshold) && t.relation.allAtLeast(t.threshold)
}

// Len returns the number of recorded entries currently held per dimension.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entity.len()
}

// Window returns the configured window size.
func (t *Tracker) Window() int { return t.window }

// Threshold returns the configured threshold.
func (t *Tracker) Threshold() float64 { return t.threshold }

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	Entity    []float64 `json:"entity"`
	Relation  []float64 `json:"relation"`
	Window    int       `json:"window"`
	Threshold float64   `json:"threshold"`
	Converged bool      `json:"converged"`
}

// Snapshot returns copies of both windows, oldest first.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Entity:    t.entity.values(),
		Relation:  t.relation.values(),
		Window:    t.window,
		Threshold: t.threshold,
		Converged: t.converged(),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("converged=%v window=%d/%d threshold=%.2f", s.Converged, len(s.Entity), s.Window, s.Threshold)
}
