package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/metrics"
	"github.com/midoshouse/racebot/room"
	"github.com/midoshouse/racebot/store"
)

// PrerollGoal describes one goal whose seeds are generated ahead of
// time. Only goals with long generation times are worth prerolling.
type PrerollGoal struct {
	// Goal is the cache key, usually the goal name.
	Goal string

	// Request is the roll request used to refill the cache.
	Request racebot.SeedRequest
}

// PrerollerConfig holds configuration for the Preroller.
type PrerollerConfig struct {
	// Store holds the prerolled seed cache (required).
	Store store.RaceStore

	// Roller generates the seeds (required).
	Roller room.SeedRoller

	// Goals are the goals to keep one seed cached for (required).
	Goals []PrerollGoal

	// CheckInterval is the interval between cache checks (default: 1m).
	CheckInterval time.Duration

	// Logger is for observability (optional).
	Logger *slog.Logger
}

// Preroller keeps one seed pre-generated per configured goal so races
// on slow-to-generate goals get their seed immediately.
type Preroller struct {
	config PrerollerConfig
}

// NewPreroller creates a new Preroller with the given configuration.
// Applies a default value for CheckInterval if not set.
func NewPreroller(cfg PrerollerConfig) *Preroller {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Preroller{config: cfg}
}

// Run refills the cache until the context is cancelled.
func (p *Preroller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.CheckInterval)
	defer ticker.Stop()

	for {
		for _, goal := range p.config.Goals {
			if err := p.refill(ctx, goal); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.config.Logger.Error("preroll failed", "goal", goal.Goal, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// refill rolls a fresh seed for the goal unless one is already cached.
// The cached seed is taken and put back rather than peeked; the store
// interface only exposes FIFO take.
func (p *Preroller) refill(ctx context.Context, goal PrerollGoal) error {
	seed, err := p.config.Store.TakePrerolledSeed(ctx, goal.Goal)
	if err == nil {
		metrics.SetPrerolledSeedsCached(goal.Goal, 1)
		return p.config.Store.CachePrerolledSeed(ctx, goal.Goal, seed)
	}
	if !errors.Is(err, store.ErrNoPrerolledSeed) {
		return err
	}
	metrics.SetPrerolledSeedsCached(goal.Goal, 0)

	p.config.Logger.Info("prerolling seed", "goal", goal.Goal)
	for update := range p.config.Roller.Roll(ctx, goal.Request) {
		switch update.Kind {
		case racebot.UpdateDone:
			if err := p.config.Store.CachePrerolledSeed(ctx, goal.Goal, update.Seed); err != nil {
				return err
			}
			metrics.SetPrerolledSeedsCached(goal.Goal, 1)
			return nil
		case racebot.UpdateError:
			return update.Err
		}
	}
	return fmt.Errorf("roll ended without a result for goal %q", goal.Goal)
}

// CachedRoller serves rolls for one goal from the prerolled seed cache
// when possible, falling back to the wrapped roller. A cache hit emits
// an immediate Done on the update channel.
type CachedRoller struct {
	Goal   string
	Store  store.RaceStore
	Roller room.SeedRoller
	Logger *slog.Logger
}

var _ room.SeedRoller = (*CachedRoller)(nil)

func (c *CachedRoller) Roll(ctx context.Context, req racebot.SeedRequest) <-chan racebot.SeedRollUpdate {
	seed, err := c.Store.TakePrerolledSeed(ctx, c.Goal)
	if err == nil {
		ch := make(chan racebot.SeedRollUpdate, 1)
		ch <- racebot.Done(seed)
		close(ch)
		return ch
	}
	if !errors.Is(err, store.ErrNoPrerolledSeed) && c.Logger != nil {
		c.Logger.Error("prerolled seed lookup failed", "goal", c.Goal, "error", err)
	}
	return c.Roller.Roll(ctx, req)
}

func (c *CachedRoller) RollThirdParty(ctx context.Context, req racebot.SeedRequest) <-chan racebot.SeedRollUpdate {
	return c.Roller.RollThirdParty(ctx, req)
}
