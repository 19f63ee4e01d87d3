package challenges

import (
	"context"
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Window is the weekly slot during which the trending computation may run:
// Weekday between Start and End (offsets from local midnight) in Location.
// The computed week is labelled by the most recent AnchorWeekday.
type Window struct {
	Location      *time.Location
	Weekday       time.Weekday
	Start         time.Duration
	End           time.Duration
	AnchorWeekday time.Weekday
}

func DefaultWindow() Window {
	return Window{
		Location:      time.UTC,
		Weekday:       time.Friday,
		Start:         12 * time.Hour,
		End:           13 * time.Hour,
		AnchorWeekday: time.Friday,
	}
}

func (w Window) Validate() error {
	if w.Start < 0 || w.End > day || w.Start >= w.End {
		return fmt.Errorf("invalid trending window %s-%s", w.Start, w.End)
	}
	return nil
}

// Eligibility is the scheduler's decision for one timestamp. Anchor is the
// start of the most recent window at or before the timestamp; Week is only
// set when the timestamp falls inside a window.
type Eligibility struct {
	Eligible bool
	Anchor   time.Time
	Week     time.Time
}

type Scheduler struct {
	window Window
}

func NewScheduler(w Window) (*Scheduler, error) {
	if w.Location == nil {
		w.Location = time.UTC
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{window: w}, nil
}

func (s *Scheduler) Window() Window {
	return s.window
}

// InWindow reports whether t falls on the window's weekday within [Start, End).
func (s *Scheduler) InWindow(t time.Time) bool {
	local := t.In(s.window.Location)
	if local.Weekday() != s.window.Weekday {
		return false
	}
	offset := clockOffset(local)
	return offset >= s.window.Start && offset < s.window.End
}

// LastWindowStart returns the most recent window opening at or before t.
func (s *Scheduler) LastWindowStart(t time.Time) time.Time {
	local := t.In(s.window.Location)
	back := (int(local.Weekday()) - int(s.window.Weekday) + 7) % 7
	d := midnight(local).AddDate(0, 0, -back)
	start := addClock(d, s.window.Start)
	if start.After(local) {
		start = addClock(d.AddDate(0, 0, -7), s.window.Start)
	}
	return start
}

// WeekAnchor returns the calendar date of the most recent anchor weekday at
// or before t, as midnight UTC.
func (s *Scheduler) WeekAnchor(t time.Time) time.Time {
	local := t.In(s.window.Location)
	back := (int(local.Weekday()) - int(s.window.AnchorWeekday) + 7) % 7
	d := local.AddDate(0, 0, -back)
	return civilDate(d)
}

// ShouldUpdate decides whether the trending computation is due at t.
func (s *Scheduler) ShouldUpdate(ctx context.Context, store TrendingStore, t time.Time) (Eligibility, error) {
	anchor := s.LastWindowStart(t)
	if !s.InWindow(t) {
		return Eligibility{Anchor: anchor}, nil
	}

	week := s.WeekAnchor(t)
	last, ok, err := store.LatestTrendingWeek(ctx)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to read latest trending week: %w", err)
	}
	if !ok {
		return Eligibility{Eligible: true, Anchor: anchor, Week: week}, nil
	}
	return Eligibility{
		Eligible: week.After(civilDate(last)),
		Anchor:   anchor,
		Week:     week,
	}, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clockOffset(t time.Time) time.Duration {
	h, m, sec := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(t.Nanosecond())
}

// addClock sets the wall clock of d's date to offset, so DST changes do not
// shift the window.
func addClock(d time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	sec := int(offset % time.Minute / time.Second)
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, sec, 0, d.Location())
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
