package challenges

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/event"
)

// Processor consumes one kind's batch of events inside a unit of work.
type Processor interface {
	ChallengeID() string
	Process(ctx context.Context, scope Scope, kind event.Kind, events []event.Event) error
}

// Manager orchestrates a single challenge: it creates user challenges for
// newly eligible users, runs the updater and writes the results back.
type Manager struct {
	challengeID string
	updater     Updater
	logger      *slog.Logger
	now         func() time.Time
}

type ManagerOption func(*Manager)

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func NewManager(challengeID string, updater Updater, opts ...ManagerOption) *Manager {
	m := &Manager{
		challengeID: challengeID,
		updater:     updater,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "challenge_manager", "challenge_id", challengeID)
	return m
}

func (m *Manager) ChallengeID() string {
	return m.challengeID
}

func (m *Manager) Process(ctx context.Context, scope Scope, kind event.Kind, events []event.Event) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		batchesProcessed.WithLabelValues(m.challengeID, outcome).Inc()
	}()

	def, err := scope.Definition(ctx, m.challengeID)
	if err != nil {
		return fmt.Errorf("failed to load challenge %s: %w", m.challengeID, err)
	}
	if !def.Active {
		m.logger.Debug("Skipping inactive challenge", slog.Int("events", len(events)))
		return nil
	}
	if def.Type == challenge.TypeNumeric && def.StepCount == nil {
		return fmt.Errorf("challenge %s: %w", m.challengeID, ErrMissingStepCount)
	}

	events = filterStartingBlock(events, def.StartingBlock)
	if len(events) == 0 {
		return nil
	}

	// Specifiers in first-appearance order; grouping by specifier groups
	// by user for per-user challenges.
	var specifiers []string
	firstEvent := make(map[string]event.Event)
	bySpecifier := make(map[string][]event.Event)
	for _, e := range events {
		spec := m.updater.Specifier(e)
		if spec == "" {
			m.logger.Warn("Dropping event without specifier",
				slog.String("event_id", e.ID.String()),
				slog.Int64("user_id", e.UserID))
			continue
		}
		if _, ok := firstEvent[spec]; !ok {
			firstEvent[spec] = e
			specifiers = append(specifiers, spec)
		}
		bySpecifier[spec] = append(bySpecifier[spec], e)
	}
	if len(specifiers) == 0 {
		return nil
	}

	existing, err := scope.UserChallenges(ctx, m.challengeID, specifiers)
	if err != nil {
		return fmt.Errorf("failed to load user challenges for %s: %w", m.challengeID, err)
	}
	rows := make(map[string]*challenge.UserChallenge, len(specifiers))
	for _, uc := range existing {
		rows[uc.Specifier] = uc
	}

	created, createdEvents, err := m.createMissing(ctx, scope, def, specifiers, firstEvent, rows)
	if err != nil {
		return err
	}
	if len(created) > 0 {
		if err := m.updater.OnAfterCreate(ctx, scope, createdEvents); err != nil {
			return fmt.Errorf("failed to initialize progress for %s: %w", m.challengeID, err)
		}
	}

	var (
		participating []*challenge.UserChallenge
		batch         []event.Event
	)
	wasComplete := make(map[string]bool, len(rows))
	for _, spec := range specifiers {
		uc, ok := rows[spec]
		if !ok {
			continue
		}
		participating = append(participating, uc)
		wasComplete[spec] = uc.IsComplete
	}
	for _, e := range events {
		if _, ok := rows[m.updater.Specifier(e)]; ok {
			batch = append(batch, e)
		}
	}
	if len(participating) == 0 {
		return nil
	}

	err = m.updater.Update(ctx, scope, UpdateInput{
		Kind:           kind,
		UserChallenges: participating,
		StepCount:      def.StepCount,
		Events:         batch,
		StartingBlock:  def.StartingBlock,
	})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", m.challengeID, err)
	}

	now := m.now()
	newlyComplete := 0
	for _, uc := range participating {
		complete := uc.IsComplete
		if def.Type == challenge.TypeNumeric {
			complete = uc.CurrentStepCount >= *def.StepCount
		}
		if wasComplete[uc.Specifier] {
			uc.IsComplete = true
			continue
		}
		uc.IsComplete = complete
		if complete {
			completedAt := now
			uc.CompletedAt = &completedAt
			block := maxBlock(bySpecifier[uc.Specifier])
			uc.CompletedBlockNumber = &block
			newlyComplete++
		}
	}

	createdSet := make(map[*challenge.UserChallenge]bool, len(created))
	for _, uc := range created {
		createdSet[uc] = true
	}
	var updates []*challenge.UserChallenge
	for _, uc := range participating {
		if !createdSet[uc] {
			updates = append(updates, uc)
		}
	}

	if len(created) > 0 {
		if err := scope.InsertUserChallenges(ctx, created); err != nil {
			return fmt.Errorf("failed to create user challenges for %s: %w", m.challengeID, err)
		}
	}
	if len(updates) > 0 {
		if err := scope.UpdateUserChallenges(ctx, updates); err != nil {
			return fmt.Errorf("failed to save user challenges for %s: %w", m.challengeID, err)
		}
	}

	if newlyComplete > 0 {
		completions.WithLabelValues(m.challengeID).Add(float64(newlyComplete))
	}
	m.logger.Debug("Processed challenge batch",
		slog.String("kind", string(kind)),
		slog.Int("events", len(batch)),
		slog.Int("created", len(created)),
		slog.Int("completed", newlyComplete))
	return nil
}

func (m *Manager) createMissing(
	ctx context.Context,
	scope Scope,
	def *challenge.Definition,
	specifiers []string,
	firstEvent map[string]event.Event,
	rows map[string]*challenge.UserChallenge,
) ([]*challenge.UserChallenge, []event.Event, error) {
	var candidates []string
	for _, spec := range specifiers {
		if _, ok := rows[spec]; ok {
			continue
		}
		if m.updater.ShouldCreate(firstEvent[spec]) {
			candidates = append(candidates, spec)
		}
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	// Aggregate challenges with a step count cap how many instances one
	// user may hold.
	var held map[int64]int
	capped := def.Type == challenge.TypeAggregate && def.StepCount != nil
	if capped {
		userIDs := make([]int64, 0, len(candidates))
		for _, spec := range candidates {
			userIDs = append(userIDs, firstEvent[spec].UserID)
		}
		var err error
		held, err = scope.CountUserChallenges(ctx, m.challengeID, userIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to count user challenges for %s: %w", m.challengeID, err)
		}
		if held == nil {
			held = make(map[int64]int)
		}
	}

	var (
		created []*challenge.UserChallenge
		evts    []event.Event
	)
	for _, spec := range candidates {
		e := firstEvent[spec]
		if capped {
			if held[e.UserID] >= *def.StepCount {
				continue
			}
			held[e.UserID]++
		}
		uc := &challenge.UserChallenge{
			ChallengeID: m.challengeID,
			UserID:      e.UserID,
			Specifier:   spec,
		}
		rows[spec] = uc
		created = append(created, uc)
		evts = append(evts, e)
	}
	return created, evts, nil
}

func filterStartingBlock(events []event.Event, startingBlock *int64) []event.Event {
	if startingBlock == nil {
		return events
	}
	kept := make([]event.Event, 0, len(events))
	for _, e := range events {
		if e.BlockNumber >= *startingBlock {
			kept = append(kept, e)
		}
	}
	return kept
}

func maxBlock(events []event.Event) int64 {
	var block int64
	for _, e := range events {
		if e.BlockNumber > block {
			block = e.BlockNumber
		}
	}
	return block
}
