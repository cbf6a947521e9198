package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects progress notifications for one waiter.
type recorder struct {
	mu     sync.Mutex
	queued []int
	moved  []int
}

func (r *recorder) Queued(pos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, pos)
}

func (r *recorder) MovedForward(pos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved = append(r.moved, pos)
}

func (r *recorder) snapshot() ([]int, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.queued...), append([]int(nil), r.moved...)
}

func TestAcquire_ImmediateWhenSlotsFree(t *testing.T) {
	g := New(2)
	rec1, rec2 := &recorder{}, &recorder{}

	p1, err := g.Acquire(context.Background(), rec1)
	require.NoError(t, err)
	p2, err := g.Acquire(context.Background(), rec2)
	require.NoError(t, err)
	defer p1.Release()
	defer p2.Release()

	queued, moved := rec1.snapshot()
	assert.Empty(t, queued, "first acquire should not be queued")
	assert.Empty(t, moved)
	queued, moved = rec2.snapshot()
	assert.Empty(t, queued, "second acquire should not be queued")
	assert.Empty(t, moved)
}

func TestAcquire_ThirdRequestQueuedAtFront(t *testing.T) {
	g := New(2)
	p1, err := g.Acquire(context.Background(), nil)
	require.NoError(t, err)
	_, err = g.Acquire(context.Background(), nil)
	require.NoError(t, err)

	rec := &recorder{}
	granted := make(chan *Permit, 1)
	go func() {
		p, err := g.Acquire(context.Background(), rec)
		if err == nil {
			granted <- p
		}
	}()

	// Wait for the third request to enter the queue.
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)
	queued, moved := rec.snapshot()
	assert.Equal(t, []int{0}, queued)
	assert.Empty(t, moved)

	// Freeing a slot grants the permit directly with no MovedForward: the
	// request was already at the front.
	p1.Release()
	select {
	case p := <-granted:
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("queued request was not granted after release")
	}
	_, moved = rec.snapshot()
	assert.Empty(t, moved, "front-of-queue waiter must not receive MovedForward")
}

func TestAcquire_FIFOOrderAndDecreasingPositions(t *testing.T) {
	g := New(1)
	held, err := g.Acquire(context.Background(), nil)
	require.NoError(t, err)

	const waiters = 3
	recs := make([]*recorder, waiters)
	order := make(chan int, waiters)
	var started sync.WaitGroup
	for i := 0; i < waiters; i++ {
		recs[i] = &recorder{}
		i := i
		started.Add(1)
		go func() {
			// Serialize arrival so queue positions are deterministic.
			for g.Waiting() != i {
				time.Sleep(time.Millisecond)
			}
			started.Done()
			p, err := g.Acquire(context.Background(), recs[i])
			if err != nil {
				return
			}
			order <- i
			p.Release()
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return g.Waiting() == waiters }, time.Second, time.Millisecond)

	held.Release()
	for want := 0; want < waiters; want++ {
		select {
		case got := <-order:
			assert.Equal(t, want, got, "permits must be granted in arrival order")
		case <-time.After(time.Second):
			t.Fatalf("waiter %d was never granted", want)
		}
	}

	for i, rec := range recs {
		queued, moved := rec.snapshot()
		require.Equal(t, []int{i}, queued, "waiter %d initial position", i)
		// Positions strictly decrease and end at 0 just before the grant.
		if i == 0 {
			assert.Empty(t, moved, "front waiter receives no move notifications")
			continue
		}
		want := make([]int, 0, i)
		for pos := i - 1; pos >= 0; pos-- {
			want = append(want, pos)
		}
		assert.Equal(t, want, moved, "waiter %d move notifications", i)
	}
}

func TestAcquire_CancelledWaiterAdvancesQueue(t *testing.T) {
	g := New(1)
	held, err := g.Acquire(context.Background(), nil)
	require.NoError(t, err)

	ctx1, cancel1 := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx1, nil)
		errs <- err
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)

	rec := &recorder{}
	granted := make(chan *Permit, 1)
	go func() {
		p, err := g.Acquire(context.Background(), rec)
		if err == nil {
			granted <- p
		}
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 2 }, time.Second, time.Millisecond)

	cancel1()
	require.ErrorIs(t, <-errs, context.Canceled)
	require.Eventually(t, func() bool {
		_, moved := rec.snapshot()
		return len(moved) == 1 && moved[0] == 0
	}, time.Second, time.Millisecond, "second waiter should move to the front")

	held.Release()
	select {
	case p := <-granted:
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("remaining waiter was not granted after release")
	}
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	g := New(1)
	p, err := g.Acquire(context.Background(), nil)
	require.NoError(t, err)
	p.Release()
	p.Release()

	// A double release must not mint an extra slot.
	p, err = g.Acquire(context.Background(), nil)
	require.NoError(t, err)
	defer p.Release()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
