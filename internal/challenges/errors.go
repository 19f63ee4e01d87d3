package challenges

import "errors"

var (
	ErrMissingStepCount        = errors.New("challenge requires a step count")
	ErrUnknownChallenge        = errors.New("challenge is not provisioned")
	ErrNoUpdater               = errors.New("no updater registered for challenge")
	ErrTrendingAlreadyComputed = errors.New("trending already computed for week")
)
