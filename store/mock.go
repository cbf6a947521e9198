package store

import (
	"context"
	"sync"
	"time"

	"github.com/midoshouse/racebot"
)

// MockRaceStore is a configurable mock implementation of RaceStore for
// use in tests. It allows setting up expected return values, tracking
// method calls, and injecting errors for testing error paths.
type MockRaceStore struct {
	mu sync.RWMutex

	// CreateRaceFunc is called by CreateRace if set.
	CreateRaceFunc func(ctx context.Context, race Race) (Race, error)

	// RaceFunc is called by Race if set.
	RaceFunc func(ctx context.Context, id int64) (Race, error)

	// SetRoomURLFunc is called by SetRoomURL if set.
	SetRoomURLFunc func(ctx context.Context, raceID int64, roomURL string) error

	// RacesDueForRoomsFunc is called by RacesDueForRooms if set.
	RacesDueForRoomsFunc func(ctx context.Context, openBefore time.Time) ([]Race, error)

	// SaveSeedFunc is called by SaveSeed if set.
	SaveSeedFunc func(ctx context.Context, raceID int64, seed *racebot.SeedRecord) error

	// SeedFunc is called by Seed if set.
	SeedFunc func(ctx context.Context, raceID int64) (*racebot.SeedRecord, error)

	// CachePrerolledSeedFunc is called by CachePrerolledSeed if set.
	CachePrerolledSeedFunc func(ctx context.Context, goal string, seed *racebot.SeedRecord) error

	// TakePrerolledSeedFunc is called by TakePrerolledSeed if set.
	TakePrerolledSeedFunc func(ctx context.Context, goal string) (*racebot.SeedRecord, error)

	// Call tracking
	CreateRaceCalls         []CreateRaceCall
	RaceCalls               []RaceCall
	SetRoomURLCalls         []SetRoomURLCall
	RacesDueForRoomsCalls   []RacesDueForRoomsCall
	SaveSeedCalls           []SaveSeedCall
	SeedCalls               []SeedCall
	CachePrerolledSeedCalls []CachePrerolledSeedCall
	TakePrerolledSeedCalls  []TakePrerolledSeedCall
}

// Call tracking structs
type CreateRaceCall struct {
	Race Race
}

type RaceCall struct {
	ID int64
}

type SetRoomURLCall struct {
	RaceID  int64
	RoomURL string
}

type RacesDueForRoomsCall struct {
	OpenBefore time.Time
}

type SaveSeedCall struct {
	RaceID int64
	Seed   *racebot.SeedRecord
}

type SeedCall struct {
	RaceID int64
}

type CachePrerolledSeedCall struct {
	Goal string
	Seed *racebot.SeedRecord
}

type TakePrerolledSeedCall struct {
	Goal string
}

// NewMockRaceStore creates a new mock race store.
func NewMockRaceStore() *MockRaceStore {
	return &MockRaceStore{}
}

var _ RaceStore = (*MockRaceStore)(nil)

// CreateRace implements RaceStore.
func (m *MockRaceStore) CreateRace(ctx context.Context, race Race) (Race, error) {
	m.mu.Lock()
	m.CreateRaceCalls = append(m.CreateRaceCalls, CreateRaceCall{Race: race})
	m.mu.Unlock()

	if m.CreateRaceFunc != nil {
		return m.CreateRaceFunc(ctx, race)
	}

	return race, nil
}

// Race implements RaceStore.
func (m *MockRaceStore) Race(ctx context.Context, id int64) (Race, error) {
	m.mu.Lock()
	m.RaceCalls = append(m.RaceCalls, RaceCall{ID: id})
	m.mu.Unlock()

	if m.RaceFunc != nil {
		return m.RaceFunc(ctx, id)
	}

	return Race{}, ErrRaceNotFound
}

// SetRoomURL implements RaceStore.
func (m *MockRaceStore) SetRoomURL(ctx context.Context, raceID int64, roomURL string) error {
	m.mu.Lock()
	m.SetRoomURLCalls = append(m.SetRoomURLCalls, SetRoomURLCall{RaceID: raceID, RoomURL: roomURL})
	m.mu.Unlock()

	if m.SetRoomURLFunc != nil {
		return m.SetRoomURLFunc(ctx, raceID, roomURL)
	}

	return nil
}

// RacesDueForRooms implements RaceStore.
func (m *MockRaceStore) RacesDueForRooms(ctx context.Context, openBefore time.Time) ([]Race, error) {
	m.mu.Lock()
	m.RacesDueForRoomsCalls = append(m.RacesDueForRoomsCalls, RacesDueForRoomsCall{OpenBefore: openBefore})
	m.mu.Unlock()

	if m.RacesDueForRoomsFunc != nil {
		return m.RacesDueForRoomsFunc(ctx, openBefore)
	}

	return []Race{}, nil
}

// SaveSeed implements RaceStore.
func (m *MockRaceStore) SaveSeed(ctx context.Context, raceID int64, seed *racebot.SeedRecord) error {
	m.mu.Lock()
	m.SaveSeedCalls = append(m.SaveSeedCalls, SaveSeedCall{RaceID: raceID, Seed: seed})
	m.mu.Unlock()

	if m.SaveSeedFunc != nil {
		return m.SaveSeedFunc(ctx, raceID, seed)
	}

	return nil
}

// Seed implements RaceStore.
func (m *MockRaceStore) Seed(ctx context.Context, raceID int64) (*racebot.SeedRecord, error) {
	m.mu.Lock()
	m.SeedCalls = append(m.SeedCalls, SeedCall{RaceID: raceID})
	m.mu.Unlock()

	if m.SeedFunc != nil {
		return m.SeedFunc(ctx, raceID)
	}

	return nil, ErrSeedNotFound
}

// CachePrerolledSeed implements RaceStore.
func (m *MockRaceStore) CachePrerolledSeed(ctx context.Context, goal string, seed *racebot.SeedRecord) error {
	m.mu.Lock()
	m.CachePrerolledSeedCalls = append(m.CachePrerolledSeedCalls, CachePrerolledSeedCall{Goal: goal, Seed: seed})
	m.mu.Unlock()

	if m.CachePrerolledSeedFunc != nil {
		return m.CachePrerolledSeedFunc(ctx, goal, seed)
	}

	return nil
}

// TakePrerolledSeed implements RaceStore.
func (m *MockRaceStore) TakePrerolledSeed(ctx context.Context, goal string) (*racebot.SeedRecord, error) {
	m.mu.Lock()
	m.TakePrerolledSeedCalls = append(m.TakePrerolledSeedCalls, TakePrerolledSeedCall{Goal: goal})
	m.mu.Unlock()

	if m.TakePrerolledSeedFunc != nil {
		return m.TakePrerolledSeedFunc(ctx, goal)
	}

	return nil, ErrNoPrerolledSeed
}

// Reset clears all call tracking data.
func (m *MockRaceStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateRaceCalls = nil
	m.RaceCalls = nil
	m.SetRoomURLCalls = nil
	m.RacesDueForRoomsCalls = nil
	m.SaveSeedCalls = nil
	m.SeedCalls = nil
	m.CachePrerolledSeedCalls = nil
	m.TakePrerolledSeedCalls = nil
}
