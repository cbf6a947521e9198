// Package lifecycle opens race rooms for scheduled races and
// coordinates graceful shutdown of the rooms a process is handling.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/midoshouse/racebot/metrics"
	"github.com/midoshouse/racebot/store"
)

// RoomOpener creates a room on the external race service and returns
// its URL. Implemented by gateways wrapping racetime.Client.StartRace.
type RoomOpener interface {
	OpenRoom(ctx context.Context, race store.Race) (string, error)
}

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Store is the race store used to discover races due for a room
	// (required).
	Store store.RaceStore

	// Opener creates rooms on the race service (required).
	Opener RoomOpener

	// RunRoom is invoked in a new goroutine for every room the manager
	// opens and should block until the room is over (required). The
	// manager counts a room as open until RunRoom returns.
	RunRoom func(ctx context.Context, race store.Race, roomURL string)

	// Announce posts the room URL to an external channel once it has
	// been persisted (optional).
	Announce func(ctx context.Context, race store.Race, roomURL string) error

	// PollInterval is the interval between due-race polls (default: 30s).
	PollInterval time.Duration

	// OpenLead is how long before its start time a race gets a room
	// (default: 30m).
	OpenLead time.Duration

	// Logger is for observability (optional).
	Logger *slog.Logger

	// Now returns the current time, overridable for tests.
	Now func() time.Time
}

// Manager polls for races whose room-open time has arrived, opens a
// room for each and tracks the rooms this process is handling.
type Manager struct {
	config Config

	// newRoomMu serializes "open room + persist URL" so an inbound
	// room-discovery listener cannot observe a room before the row
	// recording which race it belongs to exists.
	newRoomMu sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	open     map[int64]struct{}
	draining bool
}

// New creates a new lifecycle Manager with the given configuration.
// Applies default values for PollInterval and OpenLead if not set.
func New(cfg Config) *Manager {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.OpenLead == 0 {
		cfg.OpenLead = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		config: cfg,
		open:   make(map[int64]struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Run polls for due races until the context is cancelled. Each poll
// opens a room for every race whose open time has arrived.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := m.OpenDueRooms(ctx); err != nil {
			m.config.Logger.Error("opening due rooms failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// OpenDueRooms opens a room for every race whose open time has
// arrived. A draining manager opens nothing.
func (m *Manager) OpenDueRooms(ctx context.Context) error {
	m.mu.Lock()
	draining := m.draining
	m.mu.Unlock()
	if draining {
		return nil
	}

	races, err := m.config.Store.RacesDueForRooms(ctx, m.config.Now().Add(m.config.OpenLead))
	if err != nil {
		return err
	}

	for _, race := range races {
		if err := m.openRoom(ctx, race); err != nil {
			m.config.Logger.Error("opening room failed", "raceID", race.ID, "error", err)
		}
	}
	return nil
}

func (m *Manager) openRoom(ctx context.Context, race store.Race) error {
	m.newRoomMu.Lock()
	roomURL, err := m.config.Opener.OpenRoom(ctx, race)
	if err != nil {
		m.newRoomMu.Unlock()
		return err
	}
	err = m.config.Store.SetRoomURL(ctx, race.ID, roomURL)
	m.newRoomMu.Unlock()
	if err != nil {
		return err
	}

	m.config.Logger.Info("room opened", "raceID", race.ID, "roomURL", roomURL)

	if m.config.Announce != nil {
		if err := m.config.Announce(ctx, race, roomURL); err != nil {
			m.config.Logger.Error("room announcement failed", "raceID", race.ID, "error", err)
		}
	}

	m.mu.Lock()
	m.open[race.ID] = struct{}{}
	metrics.SetOpenRooms(len(m.open))
	m.mu.Unlock()

	go func() {
		defer m.closeRoom(race.ID)
		m.config.RunRoom(ctx, race, roomURL)
	}()
	return nil
}

func (m *Manager) closeRoom(raceID int64) {
	m.mu.Lock()
	delete(m.open, raceID)
	metrics.SetOpenRooms(len(m.open))
	if len(m.open) == 0 {
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

// OpenRooms returns the number of rooms this process is handling.
func (m *Manager) OpenRooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// CleanShutdown stops the manager from opening new rooms and blocks
// until every room it is handling has closed or the context is
// cancelled.
func (m *Manager) CleanShutdown(ctx context.Context) error {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		for len(m.open) > 0 {
			m.cond.Wait()
		}
		m.mu.Unlock()
		close(done)
	}()

	select {
	case <-ctx.Done():
		// Wake the waiter so its goroutine can exit once rooms close.
		m.cond.Broadcast()
		return ctx.Err()
	case <-done:
		return nil
	}
}
