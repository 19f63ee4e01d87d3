// Package memstore is an in-memory challenges.Scope with transactional
// semantics, used by tests and local tooling.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/streak"
	"challengesAPI/internal/types/trending"
)

var _ challenges.Scope = (*Tx)(nil)

type state struct {
	definitions    map[string]challenge.Definition
	userChallenges map[string]challenge.UserChallenge // challengeID + "\x00" + specifier
	streaks        map[int64]streak.ListenStreak
	trending       []trending.Result
}

func newState() *state {
	return &state{
		definitions:    make(map[string]challenge.Definition),
		userChallenges: make(map[string]challenge.UserChallenge),
		streaks:        make(map[int64]streak.ListenStreak),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.definitions {
		c.definitions[k] = v
	}
	for k, v := range s.userChallenges {
		c.userChallenges[k] = v
	}
	for k, v := range s.streaks {
		c.streaks[k] = v
	}
	c.trending = append([]trending.Result(nil), s.trending...)
	return c
}

// Store holds committed state.
type Store struct {
	mu    sync.Mutex
	state *state
}

func New(defs ...challenge.Definition) *Store {
	s := &Store{state: newState()}
	for _, def := range defs {
		s.state.definitions[def.ID] = def
	}
	return s
}

// PutDefinition provisions or replaces a definition outside any transaction.
func (s *Store) PutDefinition(def challenge.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.definitions[def.ID] = def
}

// Begin starts a transaction over a private copy of the committed state.
func (s *Store) Begin() *Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Tx{store: s, state: s.state.clone()}
}

// InTx runs fn in a transaction, committing only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx := s.Begin()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) UserChallenges(challengeID string) []challenge.UserChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.userChallengesFor(challengeID)
}

func (s *Store) ListenStreak(userID int64) (streak.ListenStreak, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.streaks[userID]
	return row, ok
}

func (s *Store) TrendingResults(t trending.Type) []trending.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trending.Result
	for _, r := range s.state.trending {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Tx is one unit of work. It implements challenges.Scope.
type Tx struct {
	store *Store
	state *state
	done  bool
}

func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.done = true
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.state = tx.state
	return nil
}

func (tx *Tx) Rollback() {
	tx.done = true
}

func key(challengeID, specifier string) string {
	return challengeID + "\x00" + specifier
}

func (s *state) userChallengesFor(challengeID string) []challenge.UserChallenge {
	var out []challenge.UserChallenge
	for _, uc := range s.userChallenges {
		if uc.ChallengeID == challengeID {
			out = append(out, uc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Specifier < out[j].Specifier })
	return out
}

func (tx *Tx) Definition(_ context.Context, id string) (*challenge.Definition, error) {
	def, ok := tx.state.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, challenges.ErrUnknownChallenge)
	}
	return &def, nil
}

func (tx *Tx) UserChallenges(_ context.Context, challengeID string, specifiers []string) ([]*challenge.UserChallenge, error) {
	var out []*challenge.UserChallenge
	for _, spec := range specifiers {
		if uc, ok := tx.state.userChallenges[key(challengeID, spec)]; ok {
			row := uc
			out = append(out, &row)
		}
	}
	return out, nil
}

func (tx *Tx) UserChallengesForUser(_ context.Context, userID int64) ([]*challenge.UserChallenge, error) {
	var out []*challenge.UserChallenge
	for _, uc := range tx.state.userChallenges {
		if uc.UserID == userID {
			row := uc
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChallengeID != out[j].ChallengeID {
			return out[i].ChallengeID < out[j].ChallengeID
		}
		return out[i].Specifier < out[j].Specifier
	})
	return out, nil
}

func (tx *Tx) CountUserChallenges(_ context.Context, challengeID string, userIDs []int64) (map[int64]int, error) {
	want := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	counts := make(map[int64]int)
	for _, uc := range tx.state.userChallenges {
		if uc.ChallengeID == challengeID && want[uc.UserID] {
			counts[uc.UserID]++
		}
	}
	return counts, nil
}

func (tx *Tx) InsertUserChallenges(_ context.Context, rows []*challenge.UserChallenge) error {
	for _, uc := range rows {
		k := key(uc.ChallengeID, uc.Specifier)
		if _, exists := tx.state.userChallenges[k]; exists {
			return fmt.Errorf("duplicate user challenge %s/%s", uc.ChallengeID, uc.Specifier)
		}
		tx.state.userChallenges[k] = *uc
	}
	return nil
}

func (tx *Tx) UpdateUserChallenges(_ context.Context, rows []*challenge.UserChallenge) error {
	for _, uc := range rows {
		k := key(uc.ChallengeID, uc.Specifier)
		if _, exists := tx.state.userChallenges[k]; !exists {
			return fmt.Errorf("user challenge %s/%s not found", uc.ChallengeID, uc.Specifier)
		}
		tx.state.userChallenges[k] = *uc
	}
	return nil
}

func (tx *Tx) ListenStreaks(_ context.Context, userIDs []int64) ([]*streak.ListenStreak, error) {
	var out []*streak.ListenStreak
	for _, id := range userIDs {
		if row, ok := tx.state.streaks[id]; ok {
			r := row
			out = append(out, &r)
		}
	}
	return out, nil
}

func (tx *Tx) InsertListenStreaks(_ context.Context, rows []*streak.ListenStreak) error {
	for _, row := range rows {
		if _, exists := tx.state.streaks[row.UserID]; exists {
			continue
		}
		tx.state.streaks[row.UserID] = *row
	}
	return nil
}

func (tx *Tx) UpdateListenStreaks(_ context.Context, rows []*streak.ListenStreak) error {
	for _, row := range rows {
		tx.state.streaks[row.UserID] = *row
	}
	return nil
}

func (tx *Tx) LatestTrendingWeek(context.Context) (time.Time, bool, error) {
	var (
		latest time.Time
		found  bool
	)
	for _, r := range tx.state.trending {
		if !found || r.Week.After(latest) {
			latest = r.Week
			found = true
		}
	}
	return latest, found, nil
}

func (tx *Tx) InsertTrendingResults(_ context.Context, rows []trending.Result) error {
	seen := make(map[string]bool, len(tx.state.trending)+len(rows))
	resultKey := func(r trending.Result) string {
		return fmt.Sprintf("%s|%s|%s|%s", r.Type, r.Week.Format(trending.WeekLayout), r.Version, r.ID)
	}
	for _, r := range tx.state.trending {
		seen[resultKey(r)] = true
	}
	for _, r := range rows {
		k := resultKey(r)
		if seen[k] {
			return trending.ErrDuplicateResult
		}
		seen[k] = true
	}
	tx.state.trending = append(tx.state.trending, rows...)
	return nil
}
