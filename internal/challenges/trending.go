package challenges

import (
	"context"
	"fmt"
	"strconv"

	"challengesAPI/internal/types/event"
)

// TrendingUpdater completes one challenge instance per (week, rank) the
// moment its event arrives.
type TrendingUpdater struct {
	baseUpdater
	kind event.Kind
}

func NewTrendingUpdater(kind event.Kind) *TrendingUpdater {
	return &TrendingUpdater{kind: kind}
}

func (u *TrendingUpdater) Update(_ context.Context, _ Scope, in UpdateInput) error {
	if in.Kind != u.kind {
		return nil
	}
	for _, uc := range in.UserChallenges {
		uc.IsComplete = true
	}
	return nil
}

func (u *TrendingUpdater) Specifier(e event.Event) string {
	week, rank, ok := trendingPosition(e)
	if !ok {
		return ""
	}
	return TrendingSpecifier(week, rank)
}

func (u *TrendingUpdater) ShouldCreate(e event.Event) bool {
	_, _, ok := trendingPosition(e)
	return ok && e.Kind == u.kind
}

// TrendingSpecifier identifies the challenge instance won at rank in week.
func TrendingSpecifier(week string, rank int) string {
	return fmt.Sprintf("%s:%d", week, rank)
}

func trendingPosition(e event.Event) (string, int, bool) {
	week, ok := e.Extra["week"].(string)
	if !ok || week == "" {
		return "", 0, false
	}
	rank, ok := extraInt(e.Extra["rank"])
	if !ok || rank < 1 {
		return "", 0, false
	}
	return week, rank, true
}

// extraInt accepts the numeric shapes an extra value takes in memory and
// after a JSON round trip.
func extraInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
