package review

import (
	"errors"
	"testing"
	"time"

	"github.com/axon-memory/axon/internal/graph"
)

var reviewBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestNewStartsInBoxOneDueNow(t *testing.T) {
	s := New("fiber-1", "brain-1", reviewBase)
	if s.Box != 1 {
		t.Errorf("Box = %d, want 1", s.Box)
	}
	if !s.IsDue(reviewBase) {
		t.Error("new schedule should be due immediately")
	}
	if s.ReviewCount != 0 || s.Streak != 0 {
		t.Errorf("counters = (%d, %d), want zero", s.ReviewCount, s.Streak)
	}
}

func TestAdvanceSuccessClimbsBoxes(t *testing.T) {
	s := New("fiber-1", "brain-1", reviewBase)

	wantIntervals := []time.Duration{
		3 * 24 * time.Hour,  // box 1 -> 2
		7 * 24 * time.Hour,  // box 2 -> 3
		14 * 24 * time.Hour, // box 3 -> 4
	}

	now := reviewBase
	for i, want := range wantIntervals {
		now = now.Add(time.Hour)
		s = Advance(s, true, now)
		if s.Box != i+2 {
			t.Fatalf("after %d successes: Box = %d, want %d", i+1, s.Box, i+2)
		}
		if s.Streak != i+1 {
			t.Errorf("Streak = %d, want %d", s.Streak, i+1)
		}
		if got := s.NextReview.Sub(now); got != want {
			t.Errorf("box %d interval = %v, want %v", s.Box, got, want)
		}
		if s.ReviewCount != i+1 {
			t.Errorf("ReviewCount = %d, want %d", s.ReviewCount, i+1)
		}
	}
}

func TestAdvanceCapsAtMaxBox(t *testing.T) {
	s := New("fiber-1", "brain-1", reviewBase)
	now := reviewBase
	for i := 0; i < 8; i++ {
		now = now.Add(time.Hour)
		s = Advance(s, true, now)
	}
	if s.Box != MaxBox {
		t.Errorf("Box = %d, want capped at %d", s.Box, MaxBox)
	}
	if got := s.NextReview.Sub(now); got != 30*24*time.Hour {
		t.Errorf("terminal interval = %v, want 30d", got)
	}
	if s.Streak != 8 {
		t.Errorf("Streak = %d, want 8", s.Streak)
	}
}

func TestAdvanceFailureResets(t *testing.T) {
	s := New("fiber-1", "brain-1", reviewBase)
	s = Advance(s, true, reviewBase)
	s = Advance(s, true, reviewBase.Add(time.Hour))

	failAt := reviewBase.Add(2 * time.Hour)
	s = Advance(s, false, failAt)

	if s.Box != 1 || s.Streak != 0 {
		t.Errorf("after failure: Box = %d, Streak = %d, want 1 and 0", s.Box, s.Streak)
	}
	if got := s.NextReview.Sub(failAt); got != 24*time.Hour {
		t.Errorf("reset interval = %v, want 1d", got)
	}
	if s.ReviewCount != 3 {
		t.Errorf("ReviewCount = %d, want 3 (failures still count)", s.ReviewCount)
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	original := New("fiber-1", "brain-1", reviewBase)
	snapshot := original
	_ = Advance(original, true, reviewBase.Add(time.Hour))
	if original != snapshot {
		t.Errorf("Advance mutated its input: %+v", original)
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *graph.MemStore, *time.Time) {
	t.Helper()
	store := graph.NewMemStore()
	now := reviewBase
	sc := NewScheduler(store, func() time.Time { return now })
	return sc, store, &now
}

func TestTrackCreatesOnce(t *testing.T) {
	sc, _, now := newTestScheduler(t)

	first, err := sc.Track("fiber-1", "brain-1")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if first.Box != 1 {
		t.Errorf("Box = %d, want 1", first.Box)
	}

	*now = reviewBase.Add(time.Hour)
	again, err := sc.Track("fiber-1", "brain-1")
	if err != nil {
		t.Fatalf("Track again: %v", err)
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Error("second Track replaced the existing schedule")
	}
}

func TestRecordPersistsAdvance(t *testing.T) {
	sc, store, now := newTestScheduler(t)
	if _, err := sc.Track("fiber-1", "brain-1"); err != nil {
		t.Fatalf("Track: %v", err)
	}

	*now = reviewBase.Add(25 * time.Hour)
	updated, err := sc.Record("fiber-1", "brain-1", true)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if updated.Box != 2 {
		t.Errorf("Box = %d, want 2", updated.Box)
	}

	persisted, err := store.GetSchedule("fiber-1", "brain-1")
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if persisted.Box != 2 || persisted.ReviewCount != 1 {
		t.Errorf("persisted = %+v, want box 2 count 1", persisted)
	}
}

func TestRecordUntrackedFiber(t *testing.T) {
	sc, _, _ := newTestScheduler(t)
	if _, err := sc.Record("fiber-ghost", "brain-1", true); !errors.Is(err, graph.ErrNotFound) {
		t.Fatalf("Record err = %v, want ErrNotFound", err)
	}
}

func TestDueFiltersByClock(t *testing.T) {
	sc, _, now := newTestScheduler(t)
	if _, err := sc.Track("fiber-due", "brain-1"); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if _, err := sc.Track("fiber-later", "brain-1"); err != nil {
		t.Fatalf("Track: %v", err)
	}
	// Push fiber-later out a week.
	if _, err := sc.Record("fiber-later", "brain-1", true); err != nil {
		t.Fatalf("Record: %v", err)
	}

	due, err := sc.Due("brain-1")
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].FiberID != "fiber-due" {
		t.Fatalf("Due = %+v, want only fiber-due", due)
	}

	*now = reviewBase.Add(4 * 24 * time.Hour)
	due, err = sc.Due("brain-1")
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 2 {
		t.Errorf("after 4 days Due = %d schedules, want 2", len(due))
	}
}

func TestDiscard(t *testing.T) {
	sc, store, _ := newTestScheduler(t)
	if _, err := sc.Track("fiber-1", "brain-1"); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := sc.Discard("fiber-1", "brain-1"); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := store.GetSchedule("fiber-1", "brain-1"); !errors.Is(err, graph.ErrNotFound) {
		t.Errorf("GetSchedule err = %v, want ErrNotFound", err)
	}
}
