// Package challenges routes domain events to per-challenge update strategies
// and schedules the weekly trending computation.
package challenges

import (
	"context"
	"time"

	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/streak"
	"challengesAPI/internal/types/trending"
)

// Scope is the storage view of one unit of work. Implementations stage every
// write in the surrounding transaction; nothing here commits.
type Scope interface {
	ChallengeStore
	ListenStreakStore
	TrendingStore
}

type ChallengeStore interface {
	// Definition returns ErrUnknownChallenge when id is not provisioned.
	Definition(ctx context.Context, id string) (*challenge.Definition, error)
	UserChallenges(ctx context.Context, challengeID string, specifiers []string) ([]*challenge.UserChallenge, error)
	CountUserChallenges(ctx context.Context, challengeID string, userIDs []int64) (map[int64]int, error)
	InsertUserChallenges(ctx context.Context, rows []*challenge.UserChallenge) error
	UpdateUserChallenges(ctx context.Context, rows []*challenge.UserChallenge) error
}

type ListenStreakStore interface {
	ListenStreaks(ctx context.Context, userIDs []int64) ([]*streak.ListenStreak, error)
	// InsertListenStreaks skips users that already have a row.
	InsertListenStreaks(ctx context.Context, rows []*streak.ListenStreak) error
	UpdateListenStreaks(ctx context.Context, rows []*streak.ListenStreak) error
}

type TrendingStore interface {
	// LatestTrendingWeek reports the most recent stored week of any type and version.
	LatestTrendingWeek(ctx context.Context) (time.Time, bool, error)
	// InsertTrendingResults returns trending.ErrDuplicateResult on a uniqueness violation.
	InsertTrendingResults(ctx context.Context, rows []trending.Result) error
}
