package hunts

import (
	"sync"
	"time"

	"github.com/openfleet/huntmaster/constants"
	"github.com/openfleet/huntmaster/utils"
)

// Enforces SafetyLimits.ClientRate as a strict bound over a rolling
// 60 second window: at most `rate` starts in any window, all
// eligible clients eventually admitted. A plain token bucket with a
// full-rate burst capacity can exceed a rolling window bound right
// after a refill, so we keep the actual start timestamps instead.
type rateThrottler struct {
	mu sync.Mutex

	rate   uint64
	window time.Duration

	starts []time.Time
}

func newRateThrottler(rate uint64) *rateThrottler {
	return &rateThrottler{
		rate:   rate,
		window: constants.CLIENT_RATE_WINDOW,
	}
}

// Ready reports whether another flow may start now, and records the
// start if so.
func (self *rateThrottler) Ready() bool {
	if self.rate == 0 {
		return true
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	now := utils.GetTime().Now()
	cutoff := now.Add(-self.window)

	live := self.starts[:0]
	for _, t := range self.starts {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	self.starts = live

	if uint64(len(self.starts)) >= self.rate {
		return false
	}

	self.starts = append(self.starts, now)
	return true
}
