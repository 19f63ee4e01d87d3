package challenges

import (
	"context"
	"fmt"
	"strconv"

	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/event"
)

const (
	ChallengeListenStreak        = "listen-streak"
	ChallengeTrendingTrack       = "trending-track"
	ChallengeTrendingPlaylist    = "trending-playlist"
	ChallengeTrendingUnderground = "trending-underground-track"
)

// UpdateInput is what a manager hands its updater for one batch.
type UpdateInput struct {
	Kind           event.Kind
	UserChallenges []*challenge.UserChallenge
	StepCount      *int
	Events         []event.Event
	StartingBlock  *int64
}

// Updater holds the business rules of one challenge type. Update mutates the
// given user challenges in place; the manager persists them afterwards.
type Updater interface {
	Update(ctx context.Context, scope Scope, in UpdateInput) error
	OnAfterCreate(ctx context.Context, scope Scope, events []event.Event) error
	Specifier(e event.Event) string
	ShouldCreate(e event.Event) bool
}

// baseUpdater gives per-user challenges their default behaviour: one
// instance per user, identified by the user id.
type baseUpdater struct{}

func (baseUpdater) OnAfterCreate(context.Context, Scope, []event.Event) error { return nil }

func (baseUpdater) Specifier(e event.Event) string {
	return strconv.FormatInt(e.UserID, 10)
}

func (baseUpdater) ShouldCreate(event.Event) bool { return true }

type registration struct {
	kind    event.Kind
	updater func() Updater
}

// updaterTable is the closed set of strategies, keyed by challenge id.
var updaterTable = map[string]registration{
	ChallengeListenStreak: {
		kind:    event.KindTrackListen,
		updater: func() Updater { return &ListenStreakUpdater{} },
	},
	ChallengeTrendingTrack: {
		kind:    event.KindTrendingTrack,
		updater: func() Updater { return NewTrendingUpdater(event.KindTrendingTrack) },
	},
	ChallengeTrendingPlaylist: {
		kind:    event.KindTrendingPlaylist,
		updater: func() Updater { return NewTrendingUpdater(event.KindTrendingPlaylist) },
	},
	ChallengeTrendingUnderground: {
		kind:    event.KindTrendingUnderground,
		updater: func() Updater { return NewTrendingUpdater(event.KindTrendingUnderground) },
	},
}

// NewUpdater returns the strategy registered for challengeID together with
// the event kind it listens to.
func NewUpdater(challengeID string) (Updater, event.Kind, error) {
	reg, ok := updaterTable[challengeID]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", challengeID, ErrNoUpdater)
	}
	return reg.updater(), reg.kind, nil
}
