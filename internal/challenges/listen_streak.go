package challenges

import (
	"context"
	"fmt"
	"time"

	"challengesAPI/internal/types/event"
	"challengesAPI/internal/types/streak"
)

const (
	streakContinueAfter = 24 * time.Hour
	streakBreakAfter    = 48 * time.Hour
)

// ListenStreakUpdater counts consecutive days with at least one listen.
type ListenStreakUpdater struct {
	baseUpdater
}

func (u *ListenStreakUpdater) Update(ctx context.Context, scope Scope, in UpdateInput) error {
	if in.StepCount == nil {
		return fmt.Errorf("listen streak: %w", ErrMissingStepCount)
	}
	if len(in.UserChallenges) == 0 {
		return nil
	}

	userIDs := make([]int64, 0, len(in.UserChallenges))
	for _, uc := range in.UserChallenges {
		userIDs = append(userIDs, uc.UserID)
	}

	rows, err := scope.ListenStreaks(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("failed to load listen streaks: %w", err)
	}
	byUser := make(map[int64]*streak.ListenStreak, len(rows))
	for _, row := range rows {
		byUser[row.UserID] = row
	}

	var missing []*streak.ListenStreak
	for _, id := range userIDs {
		if _, ok := byUser[id]; !ok {
			row := &streak.ListenStreak{UserID: id}
			byUser[id] = row
			missing = append(missing, row)
		}
	}
	if len(missing) > 0 {
		if err := scope.InsertListenStreaks(ctx, missing); err != nil {
			return fmt.Errorf("failed to create listen streaks: %w", err)
		}
	}

	if in.Kind == event.KindTrackListen {
		changed := make(map[int64]*streak.ListenStreak)
		for _, e := range in.Events {
			row, ok := byUser[e.UserID]
			if !ok {
				continue
			}
			if ApplyListen(row, e.OccurredAt) {
				changed[e.UserID] = row
			}
		}
		if len(changed) > 0 {
			updates := make([]*streak.ListenStreak, 0, len(changed))
			for _, id := range userIDs {
				if row, ok := changed[id]; ok {
					updates = append(updates, row)
					delete(changed, id)
				}
			}
			if err := scope.UpdateListenStreaks(ctx, updates); err != nil {
				return fmt.Errorf("failed to update listen streaks: %w", err)
			}
		}
	}

	for _, uc := range in.UserChallenges {
		uc.CurrentStepCount = byUser[uc.UserID].ListenStreak
	}
	return nil
}

func (u *ListenStreakUpdater) OnAfterCreate(ctx context.Context, scope Scope, events []event.Event) error {
	rows := make([]*streak.ListenStreak, 0, len(events))
	seen := make(map[int64]bool, len(events))
	for _, e := range events {
		if seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		rows = append(rows, &streak.ListenStreak{UserID: e.UserID})
	}
	return scope.InsertListenStreaks(ctx, rows)
}

// ApplyListen advances s with a listen at t and reports whether s changed.
// A gap of exactly 48h resets the streak.
func ApplyListen(s *streak.ListenStreak, t time.Time) bool {
	if s.LastListenDate == nil {
		s.LastListenDate = &t
		s.ListenStreak = 1
		return true
	}

	gap := t.Sub(*s.LastListenDate)
	switch {
	case gap < streakContinueAfter:
		return false
	case gap < streakBreakAfter:
		s.ListenStreak++
	default:
		s.ListenStreak = 1
	}
	s.LastListenDate = &t
	return true
}
