// Package memory provides an in-memory RaceStore for testing and for
// running the bot without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/store"
)

// Store is an in-memory implementation of RaceStore. It provides
// thread-safe access to race and seed data using a sync.RWMutex.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	races     map[int64]store.Race
	seeds     map[int64]*racebot.SeedRecord    // raceID -> seed
	prerolled map[string][]*racebot.SeedRecord // goal -> FIFO cache
}

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		nextID:    1,
		races:     make(map[int64]store.Race),
		seeds:     make(map[int64]*racebot.SeedRecord),
		prerolled: make(map[string][]*racebot.SeedRecord),
	}
}

var _ store.RaceStore = (*Store)(nil)

// CreateRace records a scheduled race and returns it with ID and
// CreatedAt assigned.
func (s *Store) CreateRace(ctx context.Context, race store.Race) (store.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	race.ID = s.nextID
	s.nextID++
	race.CreatedAt = time.Now()
	s.races[race.ID] = race

	return race, nil
}

// Race returns a race by ID.
// Returns store.ErrRaceNotFound if the race does not exist.
func (s *Store) Race(ctx context.Context, id int64) (store.Race, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	race, ok := s.races[id]
	if !ok {
		return store.Race{}, store.ErrRaceNotFound
	}
	return race, nil
}

// SetRoomURL records the race room opened for a race.
// Returns store.ErrRaceNotFound if the race does not exist.
func (s *Store) SetRoomURL(ctx context.Context, raceID int64, roomURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	race, ok := s.races[raceID]
	if !ok {
		return store.ErrRaceNotFound
	}
	race.RoomURL = roomURL
	s.races[raceID] = race

	return nil
}

// RacesDueForRooms returns races without a room whose scheduled start
// is at or before openBefore, ordered by start time.
func (s *Store) RacesDueForRooms(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := []store.Race{}
	for _, race := range s.races {
		if race.RoomURL == "" && !race.Start.After(openBefore) {
			due = append(due, race)
		}
	}
	for i := 1; i < len(due); i++ {
		for j := i; j > 0 && due[j].Start.Before(due[j-1].Start); j-- {
			due[j], due[j-1] = due[j-1], due[j]
		}
	}
	return due, nil
}

// SaveSeed persists the seed rolled for a race, replacing any earlier
// record for the same race.
func (s *Store) SaveSeed(ctx context.Context, raceID int64, seed *racebot.SeedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seeds[raceID] = copySeed(seed)
	return nil
}

// Seed returns the seed rolled for a race.
// Returns store.ErrSeedNotFound if no seed has been saved for the race.
func (s *Store) Seed(ctx context.Context, raceID int64) (*racebot.SeedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seed, ok := s.seeds[raceID]
	if !ok {
		return nil, store.ErrSeedNotFound
	}
	return copySeed(seed), nil
}

// CachePrerolledSeed adds a seed to the pre-roll cache for a goal.
func (s *Store) CachePrerolledSeed(ctx context.Context, goal string, seed *racebot.SeedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prerolled[goal] = append(s.prerolled[goal], copySeed(seed))
	return nil
}

// TakePrerolledSeed removes and returns the oldest cached seed for a
// goal. Returns store.ErrNoPrerolledSeed if the cache is empty.
func (s *Store) TakePrerolledSeed(ctx context.Context, goal string) (*racebot.SeedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache := s.prerolled[goal]
	if len(cache) == 0 {
		return nil, store.ErrNoPrerolledSeed
	}
	seed := cache[0]
	s.prerolled[goal] = cache[1:]
	return seed, nil
}

// copySeed guards the stored record against mutation by callers.
func copySeed(seed *racebot.SeedRecord) *racebot.SeedRecord {
	out := *seed
	if seed.FileHash != nil {
		out.FileHash = append([]racebot.HashIcon(nil), seed.FileHash...)
	}
	if seed.Password != nil {
		out.Password = append([]racebot.OcarinaNote(nil), seed.Password...)
	}
	return &out
}
