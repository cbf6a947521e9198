package store

import (
	"context"
	"time"

	"github.com/midoshouse/racebot"
)

// Race is one scheduled race known to the bot.
type Race struct {
	// ID is the store-assigned race key.
	ID int64

	// Event is the tournament or event slug the race belongs to.
	Event string

	// Goal is the goal name within the event.
	Goal string

	// Start is the scheduled start time.
	Start time.Time

	// RoomURL is the race room URL once a room has been opened, empty
	// before.
	RoomURL string

	CreatedAt time.Time
}

// RaceStore provides persistence for races, their rolled seeds and the
// pre-rolled seed cache. Implementations must be safe for concurrent
// access from the room-opening loop and the per-room handlers.
type RaceStore interface {
	// CreateRace records a scheduled race and returns it with ID and
	// CreatedAt assigned.
	CreateRace(ctx context.Context, race Race) (Race, error)

	// Race returns a race by ID.
	// Returns ErrRaceNotFound if the race does not exist.
	Race(ctx context.Context, id int64) (Race, error)

	// SetRoomURL records the race room opened for a race.
	// Returns ErrRaceNotFound if the race does not exist.
	SetRoomURL(ctx context.Context, raceID int64, roomURL string) error

	// RacesDueForRooms returns races without a room whose scheduled
	// start is at or before openBefore, ordered by start time.
	RacesDueForRooms(ctx context.Context, openBefore time.Time) ([]Race, error)

	// SaveSeed persists the seed rolled for a race, replacing any
	// earlier record for the same race.
	SaveSeed(ctx context.Context, raceID int64, seed *racebot.SeedRecord) error

	// Seed returns the seed rolled for a race.
	// Returns ErrSeedNotFound if no seed has been saved for the race.
	Seed(ctx context.Context, raceID int64) (*racebot.SeedRecord, error)

	// CachePrerolledSeed adds a seed to the pre-roll cache for a goal.
	CachePrerolledSeed(ctx context.Context, goal string, seed *racebot.SeedRecord) error

	// TakePrerolledSeed removes and returns the oldest cached seed for
	// a goal. Returns ErrNoPrerolledSeed if the cache is empty.
	TakePrerolledSeed(ctx context.Context, goal string) (*racebot.SeedRecord, error)
}
