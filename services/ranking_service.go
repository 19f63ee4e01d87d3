package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/logger"
	"challengesAPI/internal/types/trending"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RankingService serves weekly rankings from the trending_scores table.
type RankingService struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

var _ challenges.Ranker = (*RankingService)(nil)

func NewRankingService(db *pgxpool.Pool, logger *slog.Logger) *RankingService {
	return &RankingService{db: db, logger: logger}
}

func (s *RankingService) Rank(ctx context.Context, t trending.Type, week time.Time, limit int) ([]trending.RankedEntity, error) {
	start := time.Now()

	query := `
		SELECT entity_id, owner_user_id
		FROM trending_scores
		WHERE type = $1 AND week = $2
		ORDER BY score DESC, entity_id ASC
		LIMIT $3
	`

	rows, err := s.db.Query(ctx, query, string(t), week, limit)
	if err != nil {
		logger.LogQuery(s.logger, "trending_scores", time.Since(start), err)
		return nil, fmt.Errorf("failed to query trending scores: %w", err)
	}
	defer rows.Close()

	entities := make([]trending.RankedEntity, 0, limit)
	for rows.Next() {
		var e trending.RankedEntity
		if err := rows.Scan(&e.EntityID, &e.OwnerUserID); err != nil {
			return nil, fmt.Errorf("failed to scan trending score: %w", err)
		}
		entities = append(entities, e)
	}
	err = rows.Err()
	logger.LogQuery(s.logger, "trending_scores", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("error iterating trending scores: %w", err)
	}

	return entities, nil
}
