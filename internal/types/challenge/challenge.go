package challenge

import (
	"time"
)

type ChallengeType string

const (
	TypeNumeric   ChallengeType = "numeric"
	TypeBoolean   ChallengeType = "boolean"
	TypeAggregate ChallengeType = "aggregate"
)

// Definition is the provisioned configuration of one challenge id.
// StepCount is nil for binary challenges; on aggregate challenges it caps
// the number of instances a single user can hold.
type Definition struct {
	ID            string        `json:"id" db:"id" yaml:"id"`
	Type          ChallengeType `json:"type" db:"type" yaml:"type"`
	StepCount     *int          `json:"step_count,omitempty" db:"step_count" yaml:"step_count"`
	Active        bool          `json:"active" db:"active" yaml:"active"`
	StartingBlock *int64        `json:"starting_block,omitempty" db:"starting_block" yaml:"starting_block"`
}

// UserChallenge is identified by (ChallengeID, Specifier). IsComplete never
// goes back to false once set.
type UserChallenge struct {
	ChallengeID          string     `json:"challenge_id" db:"challenge_id"`
	UserID               int64      `json:"user_id" db:"user_id"`
	Specifier            string     `json:"specifier" db:"specifier"`
	CurrentStepCount     int        `json:"current_step_count" db:"current_step_count"`
	IsComplete           bool       `json:"is_complete" db:"is_complete"`
	CompletedAt          *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CompletedBlockNumber *int64     `json:"completed_block_number,omitempty" db:"completed_blocknumber"`
}

type UserChallengesResponse struct {
	UserID     int64            `json:"user_id"`
	Challenges []*UserChallenge `json:"challenges"`
}
