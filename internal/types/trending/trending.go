package trending

import (
	"errors"
	"time"
)

type Type string

const (
	TypeTracks            Type = "tracks"
	TypeUndergroundTracks Type = "underground_tracks"
	TypePlaylists         Type = "playlists"
)

// WeekLayout formats the anchor week of a trending computation.
const WeekLayout = "2006-01-02"

var ErrDuplicateResult = errors.New("trending result already recorded")

// Result is one ranked entity of one (type, week, version) computation.
type Result struct {
	UserID  int64     `json:"user_id" db:"user_id"`
	Rank    int       `json:"rank" db:"rank"`
	ID      string    `json:"id" db:"id"`
	Type    Type      `json:"type" db:"type"`
	Version string    `json:"version" db:"version"`
	Week    time.Time `json:"week" db:"week"`
}

// RankedEntity is one row of the ranking collaborator's output, best first.
type RankedEntity struct {
	EntityID    string `json:"entity_id" db:"entity_id"`
	OwnerUserID int64  `json:"owner_user_id" db:"owner_user_id"`
}

type EligibilityResponse struct {
	Eligible bool      `json:"eligible"`
	Anchor   time.Time `json:"anchor"`
	Week     string    `json:"week,omitempty"`
}

type RunResponse struct {
	Ran     bool           `json:"ran"`
	Week    string         `json:"week,omitempty"`
	Results map[string]int `json:"results,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}
