package challenges_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/challenges/memstore"
	"challengesAPI/internal/types/trending"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRanker struct {
	mock.Mock
}

func (m *mockRanker) Rank(ctx context.Context, t trending.Type, week time.Time, limit int) ([]trending.RankedEntity, error) {
	args := m.Called(ctx, t, week, limit)
	entities, _ := args.Get(0).([]trending.RankedEntity)
	return entities, args.Error(1)
}

func ranked(prefix string, owners ...int64) []trending.RankedEntity {
	out := make([]trending.RankedEntity, 0, len(owners))
	for i, owner := range owners {
		out = append(out, trending.RankedEntity{EntityID: fmt.Sprintf("%s%d", prefix, i+1), OwnerUserID: owner})
	}
	return out
}

func newRanker() *mockRanker {
	r := &mockRanker{}
	r.On("Rank", mock.Anything, trending.TypeTracks, mock.Anything, 5).
		Return(ranked("t", 3, 3, 3, 2, 1, 4, 5), nil)
	r.On("Rank", mock.Anything, trending.TypeUndergroundTracks, mock.Anything, 5).
		Return(ranked("u", 1, 2), nil)
	r.On("Rank", mock.Anything, trending.TypePlaylists, mock.Anything, 5).
		Return(ranked("p", 1, 2, 3, 4, 5), nil)
	return r
}

func newEnqueuer(t *testing.T, ranker challenges.Ranker) *challenges.Enqueuer {
	t.Helper()
	return challenges.NewEnqueuer(newScheduler(t), ranker, challenges.DefaultTrendingTargets(), 5, testLogger)
}

// runTrending runs one trending job the way the service does: enqueue and
// flush in one transaction.
func runTrending(t *testing.T, store *memstore.Store, q *challenges.Enqueuer, now time.Time) (challenges.EnqueueResult, error) {
	t.Helper()
	var res challenges.EnqueueResult
	err := store.InTx(context.Background(), func(tx *memstore.Tx) error {
		bus := challenges.NewBus(newListeners(t), testLogger)
		var err error
		res, err = q.Enqueue(context.Background(), tx, bus, now)
		if err != nil {
			return err
		}
		return bus.Flush(context.Background(), tx)
	})
	return res, err
}

func TestEnqueueAssignsRanks(t *testing.T) {
	store := memstore.New(trendingDefinitions()...)
	ranker := newRanker()
	q := newEnqueuer(t, ranker)

	res, err := runTrending(t, store, q, mustTime(t, "2021-08-20T12:00:00Z"))
	require.NoError(t, err)
	require.True(t, res.Ran)
	assert.Equal(t, 5, res.Counts[trending.TypeTracks])
	assert.Equal(t, 2, res.Counts[trending.TypeUndergroundTracks])

	tracks := store.TrendingResults(trending.TypeTracks)
	require.Len(t, tracks, 5)
	for i, r := range tracks {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, fmt.Sprintf("t%d", i+1), r.ID)
		assert.Equal(t, "ePWJD", r.Version)
		assert.Equal(t, "2021-08-20", r.Week.Format(trending.WeekLayout))
	}
	assert.Len(t, store.TrendingResults(trending.TypePlaylists), 5)

	ucs := store.UserChallenges(challenges.ChallengeTrendingTrack)
	require.Len(t, ucs, 5)
	want := map[string]bool{
		"2021-08-20:1": true, "2021-08-20:2": true, "2021-08-20:3": true,
		"2021-08-20:4": true, "2021-08-20:5": true,
	}
	for _, uc := range ucs {
		assert.True(t, want[uc.Specifier], "unexpected specifier %s", uc.Specifier)
		delete(want, uc.Specifier)
		assert.True(t, uc.IsComplete)
		assert.NotNil(t, uc.CompletedAt)
	}
	assert.Empty(t, want)

	// The same owner can hold several ranks in one week.
	assert.Equal(t, int64(3), ucs[0].UserID)
	assert.Equal(t, int64(3), ucs[2].UserID)

	assert.Len(t, store.UserChallenges(challenges.ChallengeTrendingUnderground), 2)
	assert.Len(t, store.UserChallenges(challenges.ChallengeTrendingPlaylist), 5)
	ranker.AssertNumberOfCalls(t, "Rank", 3)
}

func TestEnqueueIsIdempotentWithinWeek(t *testing.T) {
	store := memstore.New(trendingDefinitions()...)
	ranker := newRanker()
	q := newEnqueuer(t, ranker)

	_, err := runTrending(t, store, q, mustTime(t, "2021-08-20T12:00:00Z"))
	require.NoError(t, err)

	res, err := runTrending(t, store, q, mustTime(t, "2021-08-20T12:30:00Z"))
	require.NoError(t, err)
	assert.False(t, res.Ran)

	assert.Len(t, store.TrendingResults(trending.TypeTracks), 5)
	assert.Len(t, store.UserChallenges(challenges.ChallengeTrendingTrack), 5)
	ranker.AssertNumberOfCalls(t, "Rank", 3)
}

func TestEnqueueOutsideWindowIsNoop(t *testing.T) {
	store := memstore.New(trendingDefinitions()...)
	ranker := &mockRanker{}
	q := newEnqueuer(t, ranker)

	res, err := runTrending(t, store, q, mustTime(t, "2021-08-19T12:00:00Z"))
	require.NoError(t, err)
	assert.False(t, res.Ran)
	ranker.AssertNotCalled(t, "Rank", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEnqueueForWeekDetectsDuplicateRun(t *testing.T) {
	store := memstore.New(trendingDefinitions()...)
	q := newEnqueuer(t, newRanker())
	week := time.Date(2021, 8, 20, 0, 0, 0, 0, time.UTC)

	run := func() error {
		return store.InTx(context.Background(), func(tx *memstore.Tx) error {
			bus := challenges.NewBus(newListeners(t), testLogger)
			if _, err := q.EnqueueForWeek(context.Background(), tx, bus, week); err != nil {
				return err
			}
			return bus.Flush(context.Background(), tx)
		})
	}

	require.NoError(t, run())
	err := run()
	require.ErrorIs(t, err, challenges.ErrTrendingAlreadyComputed)

	assert.Len(t, store.TrendingResults(trending.TypeTracks), 5)
	assert.Len(t, store.UserChallenges(challenges.ChallengeTrendingTrack), 5)
}

func TestEnqueueRankerFailureAbortsRun(t *testing.T) {
	store := memstore.New(trendingDefinitions()...)
	ranker := &mockRanker{}
	ranker.On("Rank", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("aggregate view missing"))
	q := newEnqueuer(t, ranker)

	_, err := runTrending(t, store, q, mustTime(t, "2021-08-20T12:00:00Z"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate view missing")
	assert.Empty(t, store.TrendingResults(trending.TypeTracks))

	// Recovery later in the same window.
	q = newEnqueuer(t, newRanker())
	res, err := runTrending(t, store, q, mustTime(t, "2021-08-20T12:45:00Z"))
	require.NoError(t, err)
	assert.True(t, res.Ran)
}
