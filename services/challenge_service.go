package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/event"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidListen = errors.New("invalid listen")

// UnitOfWorkFunc stages events on bus using reads and writes through scope.
type UnitOfWorkFunc func(ctx context.Context, scope *PostgresScope, bus *challenges.Bus) error

type ChallengeService struct {
	db        *pgxpool.Pool
	listeners *challenges.Listeners
	logger    *slog.Logger
}

func NewChallengeService(db *pgxpool.Pool, listeners *challenges.Listeners, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{
		db:        db,
		listeners: listeners,
		logger:    logger,
	}
}

// WithinUnitOfWork runs fn, flushes every dispatched event and commits.
// Any failure rolls the whole transaction back.
func (s *ChallengeService) WithinUnitOfWork(ctx context.Context, fn UnitOfWorkFunc) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	scope := NewPostgresScope(tx, s.logger)
	bus := challenges.NewBus(s.listeners, s.logger)

	if err := fn(ctx, scope, bus); err != nil {
		bus.Discard()
		return err
	}

	if err := bus.Flush(ctx, scope); err != nil {
		bus.Discard()
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordListens dispatches one track_listen event per play, oldest first,
// and applies them in a single transaction.
func (s *ChallengeService) RecordListens(ctx context.Context, req *event.ListenRequest) (int, error) {
	listens := make([]event.Listen, 0, len(req.Listens))
	for i, l := range req.Listens {
		if l.UserID <= 0 {
			return 0, fmt.Errorf("%w: listens[%d] has no user_id", ErrInvalidListen, i)
		}
		if l.CreatedAt.IsZero() {
			return 0, fmt.Errorf("%w: listens[%d] has no created_at", ErrInvalidListen, i)
		}
		listens = append(listens, l)
	}
	if len(listens) == 0 {
		return 0, nil
	}

	sort.SliceStable(listens, func(i, j int) bool {
		return listens[i].CreatedAt.Before(listens[j].CreatedAt)
	})

	err := s.WithinUnitOfWork(ctx, func(ctx context.Context, _ *PostgresScope, bus *challenges.Bus) error {
		for _, l := range listens {
			bus.Dispatch(event.New(event.KindTrackListen, l.UserID, l.BlockNumber, l.CreatedAt, map[string]any{
				"track_id": l.TrackID,
			}))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record listens: %w", err)
	}

	s.logger.Info("Recorded listens", slog.Int("count", len(listens)))
	return len(listens), nil
}

func (s *ChallengeService) GetUserChallenges(ctx context.Context, userID int64) (*challenge.UserChallengesResponse, error) {
	rows, err := NewPostgresScope(s.db, s.logger).UserChallengesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if rows == nil {
		rows = []*challenge.UserChallenge{}
	}
	return &challenge.UserChallengesResponse{UserID: userID, Challenges: rows}, nil
}
