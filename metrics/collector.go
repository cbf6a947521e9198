package metrics

import "time"

// Collector wraps metrics and provides helper methods with a pre-filled
// source label. Source is the seed backend: "web", "local" or
// "third_party".
type Collector struct {
	source string
}

// NewCollector creates a new Collector for the given seed source.
func NewCollector(source string) *Collector {
	return &Collector{source: source}
}

// IncRollSucceeded increments the rolls counter with a success outcome.
func (c *Collector) IncRollSucceeded() {
	RollsTotal.WithLabelValues(c.source, OutcomeSuccess).Inc()
}

// IncRollFailed increments the rolls counter with a failure outcome.
func (c *Collector) IncRollFailed() {
	RollsTotal.WithLabelValues(c.source, OutcomeFailure).Inc()
}

// IncRetry increments the retried attempts counter.
func (c *Collector) IncRetry() {
	RollRetriesTotal.WithLabelValues(c.source).Inc()
}

// ObserveRollDuration records one seed generation duration.
func (c *Collector) ObserveRollDuration(d time.Duration) {
	RollDuration.WithLabelValues(c.source).Observe(d.Seconds())
}

// SetMultiworldQueueDepth sets the multiworld queue depth gauge.
func SetMultiworldQueueDepth(depth int) {
	MultiworldQueueDepth.Set(float64(depth))
}

// SetOpenRooms sets the open rooms gauge.
func SetOpenRooms(count int) {
	OpenRooms.Set(float64(count))
}

// SetPrerolledSeedsCached sets the preroll cache gauge for a goal.
func SetPrerolledSeedsCached(goal string, count int) {
	PrerolledSeedsCached.WithLabelValues(goal).Set(float64(count))
}
