package event

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTrackListen         Kind = "track_listen"
	KindTrendingTrack       Kind = "trending_track"
	KindTrendingPlaylist    Kind = "trending_playlist"
	KindTrendingUnderground Kind = "trending_underground"
)

// Event is an immutable domain fact routed through the challenge bus.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Kind        Kind           `json:"kind"`
	UserID      int64          `json:"user_id"`
	BlockNumber int64          `json:"block_number"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Extra       map[string]any `json:"extra,omitempty"`
}

func New(kind Kind, userID int64, blockNumber int64, occurredAt time.Time, extra map[string]any) Event {
	return Event{
		ID:          uuid.New(),
		Kind:        kind,
		UserID:      userID,
		BlockNumber: blockNumber,
		OccurredAt:  occurredAt,
		Extra:       extra,
	}
}

// ListenRequest is the producer payload for a batch of track listens.
type ListenRequest struct {
	Listens []Listen `json:"listens"`
}

type Listen struct {
	UserID      int64     `json:"user_id"`
	TrackID     string    `json:"track_id"`
	CreatedAt   time.Time `json:"created_at"`
	BlockNumber int64     `json:"block_number"`
}
