package flows

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/juju/ratelimit"

	"github.com/openfleet/huntmaster/logging"
	"github.com/openfleet/huntmaster/utils"
)

// Flows the manager currently tracks that are not yet terminal.
func (self *FlowManager) ActiveFlows() []string {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []string{}
	for flow_id, flow := range self.flows {
		flow.mu.Lock()
		terminal := flow.context.State.IsTerminal()
		flow.mu.Unlock()

		if !terminal {
			result = append(result, flow_id)
		}
	}
	return result
}

// How many flows are held in memory right now.
func (self *FlowManager) TrackedFlows() int {
	self.mu.Lock()
	defer self.mu.Unlock()

	return len(self.flows)
}

// Drop terminal flows from the tracking map so a long lived frontend
// does not grow without bound. The persisted record remains the
// source of truth - a late response simply reloads it.
func (self *FlowManager) reapTerminalFlows() {
	self.mu.Lock()
	defer self.mu.Unlock()

	for flow_id, flow := range self.flows {
		flow.mu.Lock()
		terminal := flow.context.State.IsTerminal()
		flow.mu.Unlock()

		if terminal {
			delete(self.flows, flow_id)
		}
	}
}

// The flow pump: on each tick poll the response queue of every
// active flow and run the liveness check. Flows are pumped
// concurrently on a worker pool; the token bucket caps the datastore
// polling rate so a large fleet does not overwhelm the store - a
// flow skipped this tick is simply picked up on the next one.
func (self *FlowManager) Start(ctx context.Context, wg *sync.WaitGroup) {
	logger := logging.GetLogger(self.config_obj, logging.FrontendComponent)
	logger.Info("<green>Starting</> the flow pump service.")

	workers := int(self.config_obj.Frontend.GovernorWorkers)
	if workers == 0 {
		workers = 10
	}
	pool := pond.NewPool(workers)

	// Up to 500 queue polls a second, with a burst of one tick's
	// worth.
	bucket := ratelimit.NewBucketWithClock(
		2*time.Millisecond, 1000, clockAdapter{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer pool.StopAndWait()

		for {
			select {
			case <-ctx.Done():
				return

			case <-utils.GetTime().After(self.config_obj.HuntTick()):
				self.PumpFlows(ctx, pool, bucket)
			}
		}
	}()
}

func (self *FlowManager) PumpFlows(
	ctx context.Context, pool pond.Pool, bucket *ratelimit.Bucket) {

	logger := logging.GetLogger(self.config_obj, logging.FrontendComponent)
	group := pool.NewGroup()

	for _, flow_id := range self.ActiveFlows() {
		if bucket != nil && bucket.TakeAvailable(1) == 0 {
			break
		}

		group.Submit(func() {
			err := self.ProcessResponses(flow_id)
			if err != nil {
				logger.Error("Pumping flow %v: %v", flow_id, err)
				return
			}

			err = self.CheckLiveness(flow_id)
			if err != nil {
				logger.Error("Liveness check for %v: %v", flow_id, err)
			}
		})
	}

	_ = group.Wait()

	self.reapTerminalFlows()
}

// juju/ratelimit wants its own clock shape.
type clockAdapter struct{}

func (self clockAdapter) Now() time.Time {
	return utils.GetTime().Now()
}

func (self clockAdapter) Sleep(d time.Duration) {
	utils.GetTime().Sleep(d)
}
