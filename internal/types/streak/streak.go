package streak

import (
	"time"
)

// ListenStreak is the listen-streak challenge's private progress row.
type ListenStreak struct {
	UserID         int64      `json:"user_id" db:"user_id"`
	LastListenDate *time.Time `json:"last_listen_date" db:"last_listen_date"`
	ListenStreak   int        `json:"listen_streak" db:"listen_streak"`
}
