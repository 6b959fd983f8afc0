package graph

import (
	"database/sql"
	"fmt"
	"time"
)

// PutSchedule inserts or replaces the review schedule for (fiber, brain).
// Schedules are immutable values; advancing one writes a whole new row.
func (g *DB) PutSchedule(s *ReviewSchedule) error {
	if s.FiberID == "" || s.BrainID == "" {
		return fmt.Errorf("schedule fiber and brain IDs are required")
	}
	if s.Box < 1 || s.Box > 5 {
		return fmt.Errorf("schedule box %d out of range [1,5]", s.Box)
	}
	if s.NextReview.IsZero() {
		return fmt.Errorf("schedule next_review is required")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err := g.db.Exec(`
		INSERT INTO review_schedules (fiber_id, brain_id, box, next_review,
			last_reviewed, review_count, streak, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fiber_id, brain_id) DO UPDATE SET
			box = excluded.box,
			next_review = excluded.next_review,
			last_reviewed = excluded.last_reviewed,
			review_count = excluded.review_count,
			streak = excluded.streak
	`, s.FiberID, s.BrainID, s.Box, s.NextReview,
		nullableTime(s.LastReviewed), s.ReviewCount, s.Streak, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves the schedule for (fiber, brain).
func (g *DB) GetSchedule(fiberID, brainID string) (*ReviewSchedule, error) {
	row := g.db.QueryRow(`
		SELECT fiber_id, brain_id, box, next_review, last_reviewed,
			review_count, streak, created_at
		FROM review_schedules WHERE fiber_id = ? AND brain_id = ?
	`, fiberID, brainID)
	return scanSchedule(row)
}

// DueSchedules returns the brain's schedules due at or before now,
// most overdue first.
func (g *DB) DueSchedules(brainID string, now time.Time) ([]*ReviewSchedule, error) {
	rows, err := g.db.Query(`
		SELECT fiber_id, brain_id, box, next_review, last_reviewed,
			review_count, streak, created_at
		FROM review_schedules
		WHERE brain_id = ? AND next_review <= ?
		ORDER BY next_review ASC
	`, brainID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*ReviewSchedule
	for rows.Next() {
		var s ReviewSchedule
		var lastReviewed sql.NullTime
		err := rows.Scan(&s.FiberID, &s.BrainID, &s.Box, &s.NextReview,
			&lastReviewed, &s.ReviewCount, &s.Streak, &s.CreatedAt)
		if err != nil {
			continue
		}
		if lastReviewed.Valid {
			s.LastReviewed = lastReviewed.Time
		}
		schedules = append(schedules, &s)
	}
	return schedules, rows.Err()
}

// DeleteSchedule removes the schedule for (fiber, brain). Deleting a
// missing schedule is a no-op.
func (g *DB) DeleteSchedule(fiberID, brainID string) error {
	_, err := g.db.Exec(`
		DELETE FROM review_schedules WHERE fiber_id = ? AND brain_id = ?
	`, fiberID, brainID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

func scanSchedule(row *sql.Row) (*ReviewSchedule, error) {
	var s ReviewSchedule
	var lastReviewed sql.NullTime
	err := row.Scan(&s.FiberID, &s.BrainID, &s.Box, &s.NextReview,
		&lastReviewed, &s.ReviewCount, &s.Streak, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	if lastReviewed.Valid {
		s.LastReviewed = lastReviewed.Time
	}
	return &s, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
