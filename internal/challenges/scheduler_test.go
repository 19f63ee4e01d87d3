package challenges_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/challenges/memstore"
	"challengesAPI/internal/types/trending"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func assertInstant(t *testing.T, want string, got time.Time) {
	t.Helper()
	assert.True(t, mustTime(t, want).Equal(got), "want %s, got %s", want, got)
}

func newScheduler(t *testing.T) *challenges.Scheduler {
	t.Helper()
	s, err := challenges.NewScheduler(challenges.DefaultWindow())
	require.NoError(t, err)
	return s
}

func TestSchedulerWithoutPriorResult(t *testing.T) {
	s := newScheduler(t)
	tx := memstore.New().Begin()

	tests := []struct {
		name string
		at   string
		want bool
	}{
		{"wrong day", "2021-08-16T12:13:20Z", false},
		{"wrong day in window hours", "2021-08-16T12:30:00Z", false},
		{"right day before window", "2021-08-20T11:00:00Z", false},
		{"right day after window", "2021-08-20T13:00:00Z", false},
		{"window opens", "2021-08-20T12:00:00Z", true},
		{"inside window", "2021-08-20T12:59:59Z", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, err := s.ShouldUpdate(context.Background(), tx, mustTime(t, tt.at))
			require.NoError(t, err)
			assert.Equal(t, tt.want, el.Eligible)
		})
	}
}

func TestSchedulerWithPriorResult(t *testing.T) {
	s := newScheduler(t)
	store := memstore.New()
	tx := store.Begin()
	require.NoError(t, tx.InsertTrendingResults(context.Background(), []trending.Result{{
		UserID:  1,
		Rank:    1,
		ID:      "1",
		Type:    trending.TypeTracks,
		Version: "ePWJD",
		Week:    time.Date(2021, 8, 20, 0, 0, 0, 0, time.UTC),
	}}))

	el, err := s.ShouldUpdate(context.Background(), tx, mustTime(t, "2021-08-20T12:00:00Z"))
	require.NoError(t, err)
	assert.False(t, el.Eligible, "same week already computed")

	el, err = s.ShouldUpdate(context.Background(), tx, mustTime(t, "2021-08-27T12:00:00Z"))
	require.NoError(t, err)
	assert.True(t, el.Eligible)
	assert.Equal(t, "2021-08-27", el.Week.Format(trending.WeekLayout))
}

func TestSchedulerAnchors(t *testing.T) {
	s := newScheduler(t)

	// Monday: the last window opened the Friday before.
	assertInstant(t, "2021-08-13T12:00:00Z", s.LastWindowStart(mustTime(t, "2021-08-16T12:13:20Z")))
	// Friday before the window opens.
	assertInstant(t, "2021-08-13T12:00:00Z", s.LastWindowStart(mustTime(t, "2021-08-20T11:00:00Z")))
	assertInstant(t, "2021-08-20T12:00:00Z", s.LastWindowStart(mustTime(t, "2021-08-20T12:30:00Z")))

	assert.Equal(t, "2021-08-20", s.WeekAnchor(mustTime(t, "2021-08-20T12:30:00Z")).Format(trending.WeekLayout))
	assert.Equal(t, "2021-08-20", s.WeekAnchor(mustTime(t, "2021-08-26T23:00:00Z")).Format(trending.WeekLayout))
}

func TestSchedulerNormalizesTimezone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	w := challenges.DefaultWindow()
	w.Location = la
	s, err := challenges.NewScheduler(w)
	require.NoError(t, err)
	tx := memstore.New().Begin()

	// 19:00 UTC is noon in Los Angeles during daylight saving time.
	el, err := s.ShouldUpdate(context.Background(), tx, time.Unix(1629486000, 0))
	require.NoError(t, err)
	assert.True(t, el.Eligible)
	assert.Equal(t, "2021-08-20", el.Week.Format(trending.WeekLayout))

	el, err = s.ShouldUpdate(context.Background(), tx, time.Unix(1629489600, 0))
	require.NoError(t, err)
	assert.False(t, el.Eligible)
}

func TestWindowValidate(t *testing.T) {
	w := challenges.DefaultWindow()
	w.End = w.Start
	_, err := challenges.NewScheduler(w)
	assert.Error(t, err)

	w = challenges.DefaultWindow()
	w.End = 25 * time.Hour
	_, err = challenges.NewScheduler(w)
	assert.Error(t, err)
}
