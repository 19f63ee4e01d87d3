package challenges_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/challenges/memstore"
	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/event"

	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedNow   = time.Date(2021, 8, 20, 12, 0, 0, 0, time.UTC)
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func listenStreakDefinition(steps int) challenge.Definition {
	return challenge.Definition{
		ID:        challenges.ChallengeListenStreak,
		Type:      challenge.TypeNumeric,
		StepCount: intPtr(steps),
		Active:    true,
	}
}

func trendingDefinitions() []challenge.Definition {
	return []challenge.Definition{
		{ID: challenges.ChallengeTrendingTrack, Type: challenge.TypeAggregate, Active: true},
		{ID: challenges.ChallengeTrendingPlaylist, Type: challenge.TypeAggregate, Active: true},
		{ID: challenges.ChallengeTrendingUnderground, Type: challenge.TypeAggregate, Active: true},
	}
}

// newListeners registers the full updater table against the store's
// definitions.
func newListeners(t *testing.T) *challenges.Listeners {
	t.Helper()
	listeners := challenges.NewListeners()
	for _, id := range []string{
		challenges.ChallengeListenStreak,
		challenges.ChallengeTrendingTrack,
		challenges.ChallengeTrendingPlaylist,
		challenges.ChallengeTrendingUnderground,
	} {
		updater, kind, err := challenges.NewUpdater(id)
		require.NoError(t, err)
		listeners.Register(kind, challenges.NewManager(id, updater,
			challenges.WithLogger(testLogger),
			challenges.WithClock(func() time.Time { return fixedNow })))
	}
	return listeners
}

func listen(userID int64, at time.Time) event.Event {
	return event.New(event.KindTrackListen, userID, 1, at, map[string]any{"track_id": "1"})
}

// flushListens runs one unit of work containing the given listens.
func flushListens(t *testing.T, store *memstore.Store, listeners *challenges.Listeners, events ...event.Event) error {
	t.Helper()
	return store.InTx(context.Background(), func(tx *memstore.Tx) error {
		bus := challenges.NewBus(listeners, testLogger)
		for _, e := range events {
			bus.Dispatch(e)
		}
		return bus.Flush(context.Background(), tx)
	})
}

func day(n int) time.Time {
	return time.Date(2021, 8, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(n) * 24 * time.Hour)
}
