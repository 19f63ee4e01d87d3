package challenges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"challengesAPI/internal/types/event"
	"challengesAPI/internal/types/trending"

	"golang.org/x/sync/errgroup"
)

// Ranker computes the best entities of a trending type for a week, best
// first. The engine never re-sorts its output.
type Ranker interface {
	Rank(ctx context.Context, t trending.Type, week time.Time, limit int) ([]trending.RankedEntity, error)
}

// TrendingTarget ties a trending type and algorithm version to the event
// kind its winners are announced with.
type TrendingTarget struct {
	Type    trending.Type
	Version string
	Kind    event.Kind
}

func DefaultTrendingTargets() []TrendingTarget {
	return []TrendingTarget{
		{Type: trending.TypeTracks, Version: "ePWJD", Kind: event.KindTrendingTrack},
		{Type: trending.TypeUndergroundTracks, Version: "ePWJD", Kind: event.KindTrendingUnderground},
		{Type: trending.TypePlaylists, Version: "BDNxn", Kind: event.KindTrendingPlaylist},
	}
}

type EnqueueResult struct {
	Ran    bool
	Week   time.Time
	Counts map[trending.Type]int
}

type Enqueuer struct {
	scheduler *Scheduler
	ranker    Ranker
	targets   []TrendingTarget
	topN      int
	logger    *slog.Logger
}

func NewEnqueuer(scheduler *Scheduler, ranker Ranker, targets []TrendingTarget, topN int, logger *slog.Logger) *Enqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enqueuer{
		scheduler: scheduler,
		ranker:    ranker,
		targets:   targets,
		topN:      topN,
		logger:    logger.With("component", "trending_enqueuer"),
	}
}

func (q *Enqueuer) Scheduler() *Scheduler {
	return q.scheduler
}

// Enqueue runs the trending computation if the scheduler says it is due at
// now. An ineligible call does nothing.
func (q *Enqueuer) Enqueue(ctx context.Context, scope TrendingStore, bus *Bus, now time.Time) (EnqueueResult, error) {
	el, err := q.scheduler.ShouldUpdate(ctx, scope, now)
	if err != nil {
		trendingRuns.WithLabelValues("error").Inc()
		return EnqueueResult{}, err
	}
	if !el.Eligible {
		trendingRuns.WithLabelValues("skipped").Inc()
		q.logger.Debug("Trending challenges not due",
			slog.Time("at", now),
			slog.Time("last_window", el.Anchor))
		return EnqueueResult{}, nil
	}
	return q.EnqueueForWeek(ctx, scope, bus, el.Week)
}

// EnqueueForWeek records the rankings for week and dispatches one event per
// ranked entity. It returns ErrTrendingAlreadyComputed when the week was
// already recorded; the scope is then unusable and must be rolled back.
func (q *Enqueuer) EnqueueForWeek(ctx context.Context, scope TrendingStore, bus *Bus, week time.Time) (EnqueueResult, error) {
	week = civilDate(week)
	weekStr := week.Format(trending.WeekLayout)

	ranked := make([][]trending.RankedEntity, len(q.targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range q.targets {
		i, target := i, target
		g.Go(func() error {
			entities, err := q.ranker.Rank(gctx, target.Type, week, q.topN)
			if err != nil {
				return fmt.Errorf("failed to rank %s: %w", target.Type, err)
			}
			if len(entities) > q.topN {
				entities = entities[:q.topN]
			}
			ranked[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		trendingRuns.WithLabelValues("error").Inc()
		return EnqueueResult{}, err
	}

	var (
		rows   []trending.Result
		events []event.Event
	)
	counts := make(map[trending.Type]int, len(q.targets))
	for i, target := range q.targets {
		for j, entity := range ranked[i] {
			rank := j + 1
			rows = append(rows, trending.Result{
				UserID:  entity.OwnerUserID,
				Rank:    rank,
				ID:      entity.EntityID,
				Type:    target.Type,
				Version: target.Version,
				Week:    week,
			})
			events = append(events, event.New(target.Kind, entity.OwnerUserID, 0, week, map[string]any{
				"id":   entity.EntityID,
				"type": string(target.Type),
				"week": weekStr,
				"rank": rank,
			}))
		}
		counts[target.Type] = len(ranked[i])
	}

	if len(rows) > 0 {
		if err := scope.InsertTrendingResults(ctx, rows); err != nil {
			if errors.Is(err, trending.ErrDuplicateResult) {
				trendingRuns.WithLabelValues("duplicate").Inc()
				return EnqueueResult{}, fmt.Errorf("week %s: %w", weekStr, ErrTrendingAlreadyComputed)
			}
			trendingRuns.WithLabelValues("error").Inc()
			return EnqueueResult{}, fmt.Errorf("failed to record trending results: %w", err)
		}
	}

	for _, e := range events {
		bus.Dispatch(e)
	}

	trendingRuns.WithLabelValues("ran").Inc()
	q.logger.Info("Enqueued trending challenges",
		slog.String("week", weekStr),
		slog.Int("results", len(rows)))
	return EnqueueResult{Ran: true, Week: week, Counts: counts}, nil
}
