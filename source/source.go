// Package source defines the seed source abstraction. A source turns a
// seed request into a rolled seed record, reporting queueing progress
// along the way. Implementations live in the web, local, and
// thirdparty subpackages.
package source

import (
	"context"

	"github.com/midoshouse/racebot"
)

// Reporter receives progress notifications during a roll. Calls arrive
// from the rolling goroutine in order; implementations must not block
// for long.
type Reporter interface {
	// Queued reports that the roll is waiting behind pos other rolls.
	Queued(pos int)
	// MovedForward reports that the roll advanced to queue position pos.
	MovedForward(pos int)
	// Started reports that generation has actually begun.
	Started()
}

// NopReporter discards all progress notifications.
type NopReporter struct{}

func (NopReporter) Queued(int)       {}
func (NopReporter) MovedForward(int) {}
func (NopReporter) Started()         {}

// Source rolls seeds. Roll blocks until the seed is generated or the
// attempt budget is exhausted; cancelling ctx abandons queue waits but
// lets an in-flight generation finish.
type Source interface {
	Roll(ctx context.Context, req racebot.SeedRequest, report Reporter) (*racebot.SeedRecord, error)
}
