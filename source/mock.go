package source

import (
	"context"
	"sync"

	"github.com/midoshouse/racebot"
)

// MockSource is a configurable mock implementation of Source for use in
// tests. It allows setting up return values, tracking calls, and
// injecting errors for testing error paths.
type MockSource struct {
	mu sync.RWMutex

	// RollFunc is called by Roll if set.
	RollFunc func(ctx context.Context, req racebot.SeedRequest, report Reporter) (*racebot.SeedRecord, error)

	// Call tracking
	RollCalls []RollCall
}

// RollCall records a call to Roll.
type RollCall struct {
	Req racebot.SeedRequest
}

func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Roll(ctx context.Context, req racebot.SeedRequest, report Reporter) (*racebot.SeedRecord, error) {
	m.mu.Lock()
	m.RollCalls = append(m.RollCalls, RollCall{Req: req})
	m.mu.Unlock()

	if m.RollFunc != nil {
		return m.RollFunc(ctx, req, report)
	}
	return &racebot.SeedRecord{Storage: racebot.StorageLocal, FileStem: "mock"}, nil
}

// RollCallCount returns the number of Roll calls made.
func (m *MockSource) RollCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.RollCalls)
}
