package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for RollsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// RollsTotal tracks the total number of finished seed rolls.
var RollsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "racebot_seed_rolls_total",
		Help: "Total finished seed rolls",
	},
	[]string{"source", "outcome"},
)

// RollRetriesTotal tracks the total number of retried roll attempts.
var RollRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "racebot_seed_roll_retries_total",
		Help: "Total retried seed roll attempts",
	},
	[]string{"source"},
)

// MultiworldQueueDepth tracks the number of rolls waiting for a
// multiworld slot.
var MultiworldQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "racebot_multiworld_queue_depth",
		Help: "Rolls waiting for a multiworld slot",
	},
)

// OpenRooms tracks the number of race rooms this process is handling.
var OpenRooms = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "racebot_open_rooms",
		Help: "Race rooms currently being handled",
	},
)

// PrerolledSeedsCached tracks the number of seeds in the preroll cache.
var PrerolledSeedsCached = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "racebot_prerolled_seeds_cached",
		Help: "Seeds currently in the preroll cache",
	},
	[]string{"goal"},
)

// RollDuration tracks seed generation latency. Rolls range from a few
// seconds for plain settings to half an hour for multiworld.
var RollDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "racebot_seed_roll_duration_seconds",
		Help:    "Seed generation latency",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	},
	[]string{"source"},
)
