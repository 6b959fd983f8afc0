// Package review implements the Leitner-box spaced-repetition scheduler for
// fibers. Schedule transitions are pure functions over immutable values;
// persistence goes through the graph storage contract.
package review

import (
	"fmt"
	"time"

	"github.com/axon-memory/axon/internal/graph"
)

// MaxBox is the terminal Leitner level. Box 5 is a steady state, not an
// exit: successful reviews keep it at 5.
const MaxBox = 5

// Intervals maps each box to its review interval.
var Intervals = map[int]time.Duration{
	1: 24 * time.Hour,
	2: 3 * 24 * time.Hour,
	3: 7 * 24 * time.Hour,
	4: 14 * 24 * time.Hour,
	5: 30 * 24 * time.Hour,
}

// New returns the initial schedule for a fiber: box 1, due immediately.
func New(fiberID, brainID string, now time.Time) graph.ReviewSchedule {
	return graph.ReviewSchedule{
		FiberID:    fiberID,
		BrainID:    brainID,
		Box:        1,
		NextReview: now,
		CreatedAt:  now,
	}
}

// Advance applies one review outcome and returns the new schedule value.
// Success moves the box up (capped at MaxBox) and extends the streak;
// failure resets both to the bottom. The input is never mutated, so
// concurrent readers of the old value stay consistent.
func Advance(s graph.ReviewSchedule, success bool, now time.Time) graph.ReviewSchedule {
	next := s
	if success {
		next.Box = s.Box + 1
		if next.Box > MaxBox {
			next.Box = MaxBox
		}
		next.Streak = s.Streak + 1
	} else {
		next.Box = 1
		next.Streak = 0
	}
	next.NextReview = now.Add(Intervals[next.Box])
	next.LastReviewed = now
	next.ReviewCount = s.ReviewCount + 1
	return next
}

// Scheduler binds schedule operations to a store and a clock.
type Scheduler struct {
	store graph.Store
	now   func() time.Time
}

// NewScheduler creates a scheduler. A nil clock defaults to time.Now.
func NewScheduler(store graph.Store, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{store: store, now: now}
}

// Track ensures a schedule exists for the fiber, creating one at box 1 (due
// immediately) if absent, and returns the current schedule.
func (sc *Scheduler) Track(fiberID, brainID string) (*graph.ReviewSchedule, error) {
	existing, err := sc.store.GetSchedule(fiberID, brainID)
	if err == nil {
		return existing, nil
	}
	if err != graph.ErrNotFound {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	s := New(fiberID, brainID, sc.now())
	if err := sc.store.PutSchedule(&s); err != nil {
		return nil, fmt.Errorf("put schedule: %w", err)
	}
	return &s, nil
}

// Record applies a review outcome to the fiber's schedule and persists the
// new value. The fiber must already be tracked.
func (sc *Scheduler) Record(fiberID, brainID string, success bool) (*graph.ReviewSchedule, error) {
	current, err := sc.store.GetSchedule(fiberID, brainID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	next := Advance(*current, success, sc.now())
	if err := sc.store.PutSchedule(&next); err != nil {
		return nil, fmt.Errorf("put schedule: %w", err)
	}
	return &next, nil
}

// Due returns the brain's schedules due for review, most overdue first.
func (sc *Scheduler) Due(brainID string) ([]*graph.ReviewSchedule, error) {
	return sc.store.DueSchedules(brainID, sc.now())
}

// Discard removes a fiber's schedule. Whether an emptied fiber keeps its
// schedule is the caller's policy, not the scheduler's.
func (sc *Scheduler) Discard(fiberID, brainID string) error {
	return sc.store.DeleteSchedule(fiberID, brainID)
}
