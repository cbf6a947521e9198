// Package roller orchestrates seed generation across the available
// sources. It picks the web service when the requested randomizer
// version can run there, falls back to the local generator otherwise,
// and streams progress to the caller over a bounded channel.
package roller

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/metrics"
	"github.com/midoshouse/racebot/source"
)

// ErrNoThirdParty is returned by RollThirdParty when no third-party
// source was configured.
var ErrNoThirdParty = errors.New("roller: no third-party source configured")

// updateBuffer is the capacity of each roll's update channel. A single
// roll emits at most a handful of queue updates plus one terminal
// update, so the producer never blocks in practice.
const updateBuffer = 128

// WebSource is a seed source that can also report whether it is able
// to take a given request at all.
type WebSource interface {
	source.Source

	// CanRoll returns the resolved version the web service would roll
	// for req, or nil when the request must be rolled elsewhere.
	CanRoll(ctx context.Context, req racebot.SeedRequest) *racebot.Version
}

// Config configures the Orchestrator.
type Config struct {
	// Web is the hosted generator (optional). When nil every roll uses
	// Local.
	Web WebSource

	// Local is the fallback generator (required).
	Local source.Source

	// ThirdParty serves RollThirdParty (optional).
	ThirdParty source.Source

	// Rand seeds pre-roll jitter (default: time-seeded).
	Rand *rand.Rand

	// Now is the clock used for pre-roll delays (default: time.Now).
	Now func() time.Time
}

// Orchestrator implements racebot.Roller.
type Orchestrator struct {
	web        WebSource
	local      source.Source
	thirdParty source.Source
	now        func() time.Time

	mu  sync.Mutex
	rng *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// Compile-time check that Orchestrator implements racebot.Roller.
var _ racebot.Roller = (*Orchestrator)(nil)

// New creates an Orchestrator with the given configuration.
func New(cfg Config) *Orchestrator {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		web:        cfg.Web,
		local:      cfg.Local,
		thirdParty: cfg.ThirdParty,
		now:        cfg.Now,
		rng:        cfg.Rand,
		sleep:      sleepContext,
	}
}

// Roll generates a seed for req in a new goroutine and returns its
// update channel. The channel delivers queue progress followed by
// exactly one Done or Error update, then closes.
//
// The web service is used when it can take the request; otherwise the
// local generator runs. The pre-roll delay runs after source selection
// and before the source is invoked, so a room opened far in advance
// does not reveal the roll time through sequential seed IDs.
func (o *Orchestrator) Roll(ctx context.Context, req racebot.SeedRequest) <-chan racebot.SeedRollUpdate {
	updates := make(chan racebot.SeedRollUpdate, updateBuffer)

	go func() {
		defer close(updates)

		report := chanReporter{ctx: ctx, ch: updates}

		src := o.local
		mc := metrics.NewCollector(string(racebot.StorageLocal))
		if o.web != nil && !req.LocalOnly {
			if v := o.web.CanRoll(ctx, req); v != nil {
				req.Version = racebot.Pinned(*v)
				src = o.web
				mc = metrics.NewCollector(string(racebot.StorageWeb))
			}
		}

		if err := o.sleep(ctx, o.prerollDelay(req)); err != nil {
			report.send(racebot.Failed(err))
			return
		}

		start := o.now()
		seed, err := src.Roll(ctx, req, report)
		mc.ObserveRollDuration(o.now().Sub(start))
		if err != nil {
			mc.IncRollFailed()
			report.send(racebot.Failed(err))
			return
		}
		mc.IncRollSucceeded()
		report.send(racebot.Done(seed))
	}()

	return updates
}

// RollThirdParty generates a seed on the third-party service configured
// in Config.ThirdParty, with the same channel contract as Roll. The
// pre-roll delay is honored here since the service rolls synchronously.
func (o *Orchestrator) RollThirdParty(ctx context.Context, req racebot.SeedRequest) <-chan racebot.SeedRollUpdate {
	updates := make(chan racebot.SeedRollUpdate, updateBuffer)

	go func() {
		defer close(updates)

		report := chanReporter{ctx: ctx, ch: updates}

		if o.thirdParty == nil {
			report.send(racebot.Failed(ErrNoThirdParty))
			return
		}
		if err := o.sleep(ctx, o.prerollDelay(req)); err != nil {
			report.send(racebot.Failed(err))
			return
		}

		mc := metrics.NewCollector(string(racebot.StorageThirdParty))
		start := o.now()
		seed, err := o.thirdParty.Roll(ctx, req, report)
		mc.ObserveRollDuration(o.now().Sub(start))
		if err != nil {
			mc.IncRollFailed()
			report.send(racebot.Failed(err))
			return
		}
		mc.IncRollSucceeded()
		report.send(racebot.Done(seed))
	}()

	return updates
}

func (o *Orchestrator) prerollDelay(req racebot.SeedRequest) time.Duration {
	wait := time.Duration(0)
	if !req.NotBefore.IsZero() {
		wait = req.NotBefore.Sub(o.now())
	}
	return PrerollDelay(req.Preroll, wait, o.intn)
}

func (o *Orchestrator) intn(n int64) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Int63n(n)
}

// PrerollDelay returns how long to wait before rolling begins. wait is
// the time remaining until the seed's announcement deadline; a
// non-positive wait always yields zero. intn returns a uniform random
// value in [0, n).
//
// PrerollNone sleeps out the whole wait so the seed is as fresh as
// possible. PrerollShort starts at a random point in the last five
// minutes of the wait. PrerollMedium starts at a random point that
// leaves at least fifteen minutes of margin. PrerollLong starts
// immediately.
func PrerollDelay(mode racebot.PrerollMode, wait time.Duration, intn func(int64) int64) time.Duration {
	if wait <= 0 {
		return 0
	}
	switch mode {
	case racebot.PrerollNone:
		return wait
	case racebot.PrerollShort:
		min := wait - 5*time.Minute
		if min < 0 {
			min = 0
		}
		return min + time.Duration(intn(int64(wait-min)))
	case racebot.PrerollMedium:
		margin := wait - 15*time.Minute
		if margin <= 0 {
			return 0
		}
		return time.Duration(intn(int64(margin)))
	default:
		return 0
	}
}

// chanReporter forwards source progress into the update channel.
// Sends are abandoned when ctx ends so a vanished consumer cannot
// wedge the producing goroutine.
type chanReporter struct {
	ctx context.Context
	ch  chan<- racebot.SeedRollUpdate
}

func (r chanReporter) Queued(pos int)       { r.send(racebot.Queued(pos)) }
func (r chanReporter) MovedForward(pos int) { r.send(racebot.MovedForward(pos)) }
func (r chanReporter) Started()             { r.send(racebot.Started()) }

func (r chanReporter) send(u racebot.SeedRollUpdate) {
	select {
	case r.ch <- u:
	case <-r.ctx.Done():
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
