package store

import "errors"

var (
	// ErrRaceNotFound indicates the race does not exist.
	ErrRaceNotFound = errors.New("race not found")

	// ErrSeedNotFound indicates no seed has been saved for the race.
	ErrSeedNotFound = errors.New("seed not found")

	// ErrNoPrerolledSeed indicates the pre-roll cache is empty for the goal.
	ErrNoPrerolledSeed = errors.New("no prerolled seed available")
)
