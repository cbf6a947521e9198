package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midoshouse/racebot/store"
)

type fakeOpener struct {
	mu    sync.Mutex
	calls []store.Race
	url   string
	err   error
}

func (f *fakeOpener) OpenRoom(ctx context.Context, race store.Race) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, race)
	return f.url, f.err
}

func (f *fakeOpener) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestOpenDueRooms_OpensRoomAndPersistsURL(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	race := store.Race{ID: 7, Event: "mw", Goal: "3rd Multiworld Tournament", Start: time.Now().Add(20 * time.Minute)}
	mockStore.RacesDueForRoomsFunc = func(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
		return []store.Race{race}, nil
	}

	opener := &fakeOpener{url: "https://racetime.gg/ootr/adequate-kirby-5023"}
	ran := make(chan string, 1)
	manager := New(Config{
		Store:  mockStore,
		Opener: opener,
		RunRoom: func(ctx context.Context, r store.Race, roomURL string) {
			ran <- roomURL
		},
	})

	require.NoError(t, manager.OpenDueRooms(context.Background()))

	assert.Equal(t, 1, opener.callCount())
	require.Len(t, mockStore.SetRoomURLCalls, 1)
	assert.Equal(t, int64(7), mockStore.SetRoomURLCalls[0].RaceID)
	assert.Equal(t, "https://racetime.gg/ootr/adequate-kirby-5023", mockStore.SetRoomURLCalls[0].RoomURL)

	select {
	case url := <-ran:
		assert.Equal(t, "https://racetime.gg/ootr/adequate-kirby-5023", url)
	case <-time.After(time.Second):
		t.Fatal("room goroutine never ran")
	}

	assert.Eventually(t, func() bool { return manager.OpenRooms() == 0 }, time.Second, 10*time.Millisecond)
}

func TestOpenDueRooms_OpenerFailureDoesNotPersist(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	mockStore.RacesDueForRoomsFunc = func(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
		return []store.Race{{ID: 1}}, nil
	}

	opener := &fakeOpener{err: errors.New("rate limited")}
	manager := New(Config{
		Store:   mockStore,
		Opener:  opener,
		RunRoom: func(ctx context.Context, r store.Race, roomURL string) {},
	})

	require.NoError(t, manager.OpenDueRooms(context.Background()))

	assert.Empty(t, mockStore.SetRoomURLCalls)
	assert.Equal(t, 0, manager.OpenRooms())
}

func TestOpenDueRooms_UsesOpenLead(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	manager := New(Config{
		Store:    mockStore,
		Opener:   &fakeOpener{},
		RunRoom:  func(ctx context.Context, r store.Race, roomURL string) {},
		OpenLead: 30 * time.Minute,
		Now:      func() time.Time { return now },
	})

	require.NoError(t, manager.OpenDueRooms(context.Background()))

	require.Len(t, mockStore.RacesDueForRoomsCalls, 1)
	assert.Equal(t, now.Add(30*time.Minute), mockStore.RacesDueForRoomsCalls[0].OpenBefore)
}

func TestAnnounce_CalledWithPersistedURL(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	mockStore.RacesDueForRoomsFunc = func(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
		return []store.Race{{ID: 3}}, nil
	}

	var announced []string
	manager := New(Config{
		Store:   mockStore,
		Opener:  &fakeOpener{url: "https://racetime.gg/ootr/room"},
		RunRoom: func(ctx context.Context, r store.Race, roomURL string) {},
		Announce: func(ctx context.Context, r store.Race, roomURL string) error {
			announced = append(announced, roomURL)
			return nil
		},
	})

	require.NoError(t, manager.OpenDueRooms(context.Background()))

	assert.Equal(t, []string{"https://racetime.gg/ootr/room"}, announced)
}

func TestCleanShutdown_RefusesNewRooms(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	polled := 0
	mockStore.RacesDueForRoomsFunc = func(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
		polled++
		return nil, nil
	}

	manager := New(Config{
		Store:   mockStore,
		Opener:  &fakeOpener{},
		RunRoom: func(ctx context.Context, r store.Race, roomURL string) {},
	})

	require.NoError(t, manager.CleanShutdown(context.Background()))
	require.NoError(t, manager.OpenDueRooms(context.Background()))

	assert.Zero(t, polled, "a draining manager must not poll for due races")
}

func TestCleanShutdown_WaitsForOpenRooms(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	mockStore.RacesDueForRoomsFunc = func(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
		return []store.Race{{ID: 9}}, nil
	}

	release := make(chan struct{})
	started := make(chan struct{})
	manager := New(Config{
		Store:  mockStore,
		Opener: &fakeOpener{url: "https://racetime.gg/ootr/room"},
		RunRoom: func(ctx context.Context, r store.Race, roomURL string) {
			close(started)
			<-release
		},
	})

	require.NoError(t, manager.OpenDueRooms(context.Background()))
	<-started
	require.Equal(t, 1, manager.OpenRooms())

	done := make(chan error, 1)
	go func() { done <- manager.CleanShutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("CleanShutdown returned while a room was still open")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("CleanShutdown did not return after the last room closed")
	}
	assert.Equal(t, 0, manager.OpenRooms())
}

func TestCleanShutdown_ContextCancelled(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	mockStore.RacesDueForRoomsFunc = func(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
		return []store.Race{{ID: 2}}, nil
	}

	release := make(chan struct{})
	defer close(release)
	manager := New(Config{
		Store:   mockStore,
		Opener:  &fakeOpener{url: "https://racetime.gg/ootr/room"},
		RunRoom: func(ctx context.Context, r store.Race, roomURL string) { <-release },
	})
	require.NoError(t, manager.OpenDueRooms(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := manager.CleanShutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_StopsOnCancel(t *testing.T) {
	mockStore := store.NewMockRaceStore()
	var polls atomic.Int64
	mockStore.RacesDueForRoomsFunc = func(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
		polls.Add(1)
		return nil, nil
	}
	manager := New(Config{
		Store:        mockStore,
		Opener:       &fakeOpener{},
		RunRoom:      func(ctx context.Context, r store.Race, roomURL string) {},
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- manager.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return polls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after context cancellation")
	}
}
