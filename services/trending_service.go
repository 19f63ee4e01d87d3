package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/types/trending"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TrendingService struct {
	db         *pgxpool.Pool
	challenges *ChallengeService
	enqueuer   *challenges.Enqueuer
	logger     *slog.Logger
	now        func() time.Time
}

func NewTrendingService(db *pgxpool.Pool, challengeService *ChallengeService, enqueuer *challenges.Enqueuer, logger *slog.Logger) *TrendingService {
	return &TrendingService{
		db:         db,
		challenges: challengeService,
		enqueuer:   enqueuer,
		logger:     logger.With("component", "trending_job"),
		now:        time.Now,
	}
}

// TrendingTargets applies configured algorithm versions, keyed by trending
// type, over the defaults.
func TrendingTargets(versions map[string]string) []challenges.TrendingTarget {
	targets := challenges.DefaultTrendingTargets()
	for i := range targets {
		if v, ok := versions[string(targets[i].Type)]; ok && v != "" {
			targets[i].Version = v
		}
	}
	return targets
}

func toRunResponse(res challenges.EnqueueResult) *trending.RunResponse {
	resp := &trending.RunResponse{Ran: res.Ran}
	if !res.Ran {
		resp.Reason = "not eligible"
		return resp
	}
	resp.Week = res.Week.Format(trending.WeekLayout)
	resp.Results = make(map[string]int, len(res.Counts))
	for t, n := range res.Counts {
		resp.Results[string(t)] = n
	}
	return resp
}

// Run computes trending challenges if they are due at now.
func (s *TrendingService) Run(ctx context.Context, now time.Time) (*trending.RunResponse, error) {
	var res challenges.EnqueueResult
	err := s.challenges.WithinUnitOfWork(ctx, func(ctx context.Context, scope *PostgresScope, bus *challenges.Bus) error {
		var err error
		res, err = s.enqueuer.Enqueue(ctx, scope, bus, now)
		return err
	})
	return s.finish(res, err)
}

// RunForWeek computes trending challenges for week regardless of the window.
func (s *TrendingService) RunForWeek(ctx context.Context, week time.Time) (*trending.RunResponse, error) {
	var res challenges.EnqueueResult
	err := s.challenges.WithinUnitOfWork(ctx, func(ctx context.Context, scope *PostgresScope, bus *challenges.Bus) error {
		var err error
		res, err = s.enqueuer.EnqueueForWeek(ctx, scope, bus, week)
		return err
	})
	return s.finish(res, err)
}

func (s *TrendingService) finish(res challenges.EnqueueResult, err error) (*trending.RunResponse, error) {
	if errors.Is(err, challenges.ErrTrendingAlreadyComputed) {
		s.logger.Info("Trending challenges already computed", slog.String("error", err.Error()))
		return &trending.RunResponse{Ran: false, Reason: "already computed"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run trending challenges: %w", err)
	}
	return toRunResponse(res), nil
}

func (s *TrendingService) Eligibility(ctx context.Context, at time.Time) (*trending.EligibilityResponse, error) {
	el, err := s.enqueuer.Scheduler().ShouldUpdate(ctx, NewPostgresScope(s.db, s.logger), at)
	if err != nil {
		return nil, err
	}
	resp := &trending.EligibilityResponse{Eligible: el.Eligible, Anchor: el.Anchor}
	if el.Eligible {
		resp.Week = el.Week.Format(trending.WeekLayout)
	}
	return resp, nil
}

// Start polls the scheduler every interval until ctx is cancelled.
func (s *TrendingService) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Trending job started", slog.Duration("interval", interval))
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Trending job stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *TrendingService) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	resp, err := s.Run(runCtx, s.now())
	if err != nil {
		s.logger.Error("Trending job failed", slog.String("error", err.Error()))
		return
	}
	if resp.Ran {
		s.logger.Info("Trending job ran", slog.String("week", resp.Week), slog.Any("results", resp.Results))
	}
}
