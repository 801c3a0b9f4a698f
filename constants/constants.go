package constants

import "time"

var (
	VERSION = "0.1.0"

	FLOW_PREFIX   = "F."
	HUNT_PREFIX   = "H."
	CLIENT_PREFIX = "C."

	HUNT_INDEX   = "/hunt_index"
	CLIENT_INDEX = "/client_index"

	// Canonical separator for the (client, flow, timestamp) result
	// key encoding. Key components may never contain this rune.
	RESULT_KEY_SEPARATOR = "|"
)

const (
	// How often the hunt governor wakes up to schedule eligible
	// clients and recompute aggregate stats.
	DEFAULT_HUNT_TICK = 10 * time.Second

	// The rolling window over which SafetyLimits.ClientRate is
	// enforced.
	CLIENT_RATE_WINDOW = 60 * time.Second

	// A client that has not pinged for this long is considered
	// crashed for the purpose of its active flows.
	DEFAULT_PING_TIMEOUT = 600 * time.Second

	// Aggregate hunt stats are refreshed on the governor tick, so
	// reads may be stale by at most one tick. Tests should assert
	// staleness bounded by this, not exact real time accuracy.
	STATS_STALENESS_BOUND = DEFAULT_HUNT_TICK
)
