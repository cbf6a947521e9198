// Package gate provides the process-wide concurrency gate limiting how many
// multiworld seeds may be generated against the web service at once.
//
// Unlike a plain semaphore, the gate keeps an explicit FIFO wait list so that
// queued callers can be told their position, and told again each time they
// move forward. Those notifications become user-facing chat messages.
package gate

import (
	"context"
	"sync"

	"github.com/midoshouse/racebot/metrics"
)

// Progress receives queue-position notifications for one Acquire call.
// Positions are zero-based: the number of requests ahead in the queue.
type Progress interface {
	// Queued is called once if the gate is full when Acquire is called.
	Queued(position int)

	// MovedForward is called each time a request ahead of this one leaves
	// the queue. Never called with the same position twice, and never called
	// for a request that was admitted without queueing.
	MovedForward(position int)
}

// NopProgress discards all notifications.
type NopProgress struct{}

func (NopProgress) Queued(int)       {}
func (NopProgress) MovedForward(int) {}

// Gate is a counting semaphore with a FIFO wait queue and position-change
// notifications. Safe for concurrent use.
type Gate struct {
	slots chan struct{}

	mu      sync.Mutex
	waiting []chan struct{}
}

// New creates a gate admitting at most capacity concurrent holders.
func New(capacity int) *Gate {
	if capacity < 1 {
		panic("gate: capacity must be at least 1")
	}
	g := &Gate{slots: make(chan struct{}, capacity)}
	for i := 0; i < capacity; i++ {
		g.slots <- struct{}{}
	}
	return g
}

// Acquire blocks until a slot is free and this caller is at the front of the
// queue, then returns a permit. If the gate is full, the caller is appended
// to the wait list and progress (if non-nil) is notified of its position and
// of every subsequent move. Permits are granted in strict arrival order.
//
// On ctx cancellation the caller is removed from the queue and everyone
// behind it moves forward.
func (g *Gate) Acquire(ctx context.Context, progress Progress) (*Permit, error) {
	if progress == nil {
		progress = NopProgress{}
	}

	g.mu.Lock()
	if len(g.waiting) == 0 {
		select {
		case <-g.slots:
			g.mu.Unlock()
			return &Permit{gate: g}, nil
		default:
		}
	}
	pos := len(g.waiting)
	// Each departure ahead of us sends exactly one signal, so the buffer
	// never needs more than the initial position.
	wake := make(chan struct{}, pos+1)
	g.waiting = append(g.waiting, wake)
	metrics.SetMultiworldQueueDepth(len(g.waiting))
	g.mu.Unlock()

	progress.Queued(pos)
	for pos > 0 {
		select {
		case <-wake:
			pos--
			progress.MovedForward(pos)
		case <-ctx.Done():
			g.abandon(wake)
			return nil, ctx.Err()
		}
	}

	// Front of the queue: wait for a slot.
	select {
	case <-g.slots:
	case <-ctx.Done():
		g.abandon(wake)
		return nil, ctx.Err()
	}

	g.mu.Lock()
	g.removeLocked(wake)
	g.mu.Unlock()
	return &Permit{gate: g}, nil
}

// abandon removes a cancelled waiter and advances everyone behind it.
func (g *Gate) abandon(wake chan struct{}) {
	g.mu.Lock()
	g.removeLocked(wake)
	g.mu.Unlock()
}

// removeLocked takes wake out of the wait list and signals every waiter that
// was behind it. Callers must hold g.mu.
func (g *Gate) removeLocked(wake chan struct{}) {
	for i, w := range g.waiting {
		if w == wake {
			g.waiting = append(g.waiting[:i], g.waiting[i+1:]...)
			metrics.SetMultiworldQueueDepth(len(g.waiting))
			for _, behind := range g.waiting[i:] {
				behind <- struct{}{}
			}
			return
		}
	}
}

// Waiting returns the current queue length.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiting)
}

// Permit represents one admitted request. Release returns the slot; calling
// Release more than once is a no-op.
type Permit struct {
	gate *Gate
	once sync.Once
}

// Release frees the slot for the next queued request.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.gate.slots <- struct{}{}
	})
}
