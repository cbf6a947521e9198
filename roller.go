package racebot

import "context"

// Roller rolls seeds. The returned channel delivers progress and exactly one
// terminal update (Done or Error) in order, then is closed. The channel has
// one producer and must have exactly one consumer.
//
// Cancelling ctx stops waiting for the roll but lets in-flight generation
// finish in the background; its result is discarded.
type Roller interface {
	Roll(ctx context.Context, req SeedRequest) <-chan SeedRollUpdate
}
