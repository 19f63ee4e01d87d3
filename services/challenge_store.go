package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/logger"
	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/streak"
	"challengesAPI/internal/types/trending"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// dbtx is satisfied by both pgx.Tx and *pgxpool.Pool.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresScope is the challenges.Scope of one database transaction.
type PostgresScope struct {
	db     dbtx
	logger *slog.Logger
}

var _ challenges.Scope = (*PostgresScope)(nil)

func NewPostgresScope(db dbtx, logger *slog.Logger) *PostgresScope {
	return &PostgresScope{db: db, logger: logger}
}

// track times a query; call the returned func once err is final.
func (s *PostgresScope) track(name string, err *error) func() {
	start := time.Now()
	return func() {
		logger.LogQuery(s.logger, name, time.Since(start), *err)
	}
}

func (s *PostgresScope) Definition(ctx context.Context, id string) (_ *challenge.Definition, err error) {
	defer s.track("challenge_definition", &err)()

	query := `
		SELECT id, type, step_count, active, starting_block
		FROM challenges
		WHERE id = $1
	`

	var def challenge.Definition
	var kind string
	err = s.db.QueryRow(ctx, query, id).Scan(
		&def.ID,
		&kind,
		&def.StepCount,
		&def.Active,
		&def.StartingBlock,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", challenges.ErrUnknownChallenge, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge %s: %w", id, err)
	}
	def.Type = challenge.ChallengeType(kind)

	return &def, nil
}

const userChallengeColumns = `challenge_id, user_id, specifier, current_step_count, is_complete, completed_at, completed_blocknumber`

func scanUserChallenges(rows pgx.Rows) ([]*challenge.UserChallenge, error) {
	defer rows.Close()

	var out []*challenge.UserChallenge
	for rows.Next() {
		uc := &challenge.UserChallenge{}
		if err := rows.Scan(
			&uc.ChallengeID,
			&uc.UserID,
			&uc.Specifier,
			&uc.CurrentStepCount,
			&uc.IsComplete,
			&uc.CompletedAt,
			&uc.CompletedBlockNumber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user challenge: %w", err)
		}
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user challenges: %w", err)
	}
	return out, nil
}

func (s *PostgresScope) UserChallenges(ctx context.Context, challengeID string, specifiers []string) (_ []*challenge.UserChallenge, err error) {
	if len(specifiers) == 0 {
		return nil, nil
	}
	defer s.track("user_challenges", &err)()

	query := `SELECT ` + userChallengeColumns + `
		FROM user_challenges
		WHERE challenge_id = $1 AND specifier = ANY($2)
	`

	rows, err := s.db.Query(ctx, query, challengeID, specifiers)
	if err != nil {
		return nil, fmt.Errorf("failed to query user challenges: %w", err)
	}
	return scanUserChallenges(rows)
}

// UserChallengesForUser lists every challenge row of one user, ordered for display.
func (s *PostgresScope) UserChallengesForUser(ctx context.Context, userID int64) (_ []*challenge.UserChallenge, err error) {
	defer s.track("user_challenges_for_user", &err)()

	query := `SELECT ` + userChallengeColumns + `
		FROM user_challenges
		WHERE user_id = $1
		ORDER BY challenge_id, specifier
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user challenges: %w", err)
	}
	return scanUserChallenges(rows)
}

func (s *PostgresScope) CountUserChallenges(ctx context.Context, challengeID string, userIDs []int64) (_ map[int64]int, err error) {
	counts := make(map[int64]int, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}
	defer s.track("count_user_challenges", &err)()

	query := `
		SELECT user_id, COUNT(*)
		FROM user_challenges
		WHERE challenge_id = $1 AND user_id = ANY($2)
		GROUP BY user_id
	`

	rows, err := s.db.Query(ctx, query, challengeID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count user challenges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan challenge count: %w", err)
		}
		counts[userID] = n
	}
	return counts, rows.Err()
}

func (s *PostgresScope) execBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

func (s *PostgresScope) InsertUserChallenges(ctx context.Context, rows []*challenge.UserChallenge) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer s.track("insert_user_challenges", &err)()

	query := `
		INSERT INTO user_challenges (` + userChallengeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, uc := range rows {
		batch.Queue(query,
			uc.ChallengeID,
			uc.UserID,
			uc.Specifier,
			uc.CurrentStepCount,
			uc.IsComplete,
			uc.CompletedAt,
			uc.CompletedBlockNumber,
		)
	}
	if err := s.execBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to insert user challenges: %w", err)
	}
	return nil
}

func (s *PostgresScope) UpdateUserChallenges(ctx context.Context, rows []*challenge.UserChallenge) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer s.track("update_user_challenges", &err)()

	query := `
		UPDATE user_challenges
		SET current_step_count = $3,
			is_complete = $4,
			completed_at = $5,
			completed_blocknumber = $6
		WHERE challenge_id = $1 AND specifier = $2
	`

	batch := &pgx.Batch{}
	for _, uc := range rows {
		batch.Queue(query,
			uc.ChallengeID,
			uc.Specifier,
			uc.CurrentStepCount,
			uc.IsComplete,
			uc.CompletedAt,
			uc.CompletedBlockNumber,
		)
	}
	if err := s.execBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to update user challenges: %w", err)
	}
	return nil
}

func (s *PostgresScope) ListenStreaks(ctx context.Context, userIDs []int64) (_ []*streak.ListenStreak, err error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	defer s.track("listen_streaks", &err)()

	query := `
		SELECT user_id, last_listen_date, listen_streak
		FROM challenge_listen_streak
		WHERE user_id = ANY($1)
	`

	rows, err := s.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query listen streaks: %w", err)
	}
	defer rows.Close()

	var out []*streak.ListenStreak
	for rows.Next() {
		ls := &streak.ListenStreak{}
		if err := rows.Scan(&ls.UserID, &ls.LastListenDate, &ls.ListenStreak); err != nil {
			return nil, fmt.Errorf("failed to scan listen streak: %w", err)
		}
		out = append(out, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listen streaks: %w", err)
	}
	return out, nil
}

func (s *PostgresScope) InsertListenStreaks(ctx context.Context, rows []*streak.ListenStreak) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer s.track("insert_listen_streaks", &err)()

	query := `
		INSERT INTO challenge_listen_streak (user_id, last_listen_date, listen_streak)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, ls := range rows {
		batch.Queue(query, ls.UserID, ls.LastListenDate, ls.ListenStreak)
	}
	if err := s.execBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to insert listen streaks: %w", err)
	}
	return nil
}

func (s *PostgresScope) UpdateListenStreaks(ctx context.Context, rows []*streak.ListenStreak) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer s.track("update_listen_streaks", &err)()

	query := `
		UPDATE challenge_listen_streak
		SET last_listen_date = $2, listen_streak = $3
		WHERE user_id = $1
	`

	batch := &pgx.Batch{}
	for _, ls := range rows {
		batch.Queue(query, ls.UserID, ls.LastListenDate, ls.ListenStreak)
	}
	if err := s.execBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to update listen streaks: %w", err)
	}
	return nil
}

func (s *PostgresScope) LatestTrendingWeek(ctx context.Context) (_ time.Time, _ bool, err error) {
	defer s.track("latest_trending_week", &err)()

	var week time.Time
	err = s.db.QueryRow(ctx, `SELECT week FROM trending_results ORDER BY week DESC LIMIT 1`).Scan(&week)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get latest trending week: %w", err)
	}
	return week, true, nil
}

func (s *PostgresScope) InsertTrendingResults(ctx context.Context, rows []trending.Result) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer s.track("insert_trending_results", &err)()

	_, err = s.db.CopyFrom(ctx,
		pgx.Identifier{"trending_results"},
		[]string{"user_id", "rank", "id", "type", "version", "week"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.UserID, r.Rank, r.ID, string(r.Type), r.Version, r.Week}, nil
		}),
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", trending.ErrDuplicateResult, pgErr.Detail)
	}
	if err != nil {
		return fmt.Errorf("failed to insert trending results: %w", err)
	}
	return nil
}
