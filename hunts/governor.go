// The hunt governor.
//
// On a fixed tick the governor walks every running hunt: it
// schedules flows for newly eligible clients subject to the rollout
// rate and the client cap, recomputes the hunt's aggregate stats
// from flow snapshots, and stops the hunt when a safety threshold is
// breached or the hunt expires. Hunts are processed concurrently on
// a bounded worker pool; within one tick each hunt is handled by a
// single worker.
package hunts

import (
	"context"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openfleet/huntmaster/clients"
	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/constants"
	"github.com/openfleet/huntmaster/datastore"
	"github.com/openfleet/huntmaster/flows"
	"github.com/openfleet/huntmaster/foreman"
	"github.com/openfleet/huntmaster/logging"
	"github.com/openfleet/huntmaster/utils"
)

var (
	scheduledFlowCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hunt_scheduled_flows",
		Help: "Total number of flows scheduled by hunts.",
	})
)

type Governor struct {
	mu sync.Mutex

	config_obj *config.Config
	db         datastore.DataStore

	dispatcher  *HuntDispatcher
	flow_mgr    *flows.FlowManager
	client_info clients.AttributeSource

	pool pond.Pool

	// One throttler per hunt, lazily created.
	throttlers map[string]*rateThrottler
}

func NewGovernor(
	config_obj *config.Config,
	db datastore.DataStore,
	dispatcher *HuntDispatcher,
	flow_mgr *flows.FlowManager,
	client_info clients.AttributeSource) *Governor {

	workers := int(config_obj.Frontend.GovernorWorkers)
	if workers == 0 {
		workers = 10
	}

	return &Governor{
		config_obj:  config_obj,
		db:          db,
		dispatcher:  dispatcher,
		flow_mgr:    flow_mgr,
		client_info: client_info,
		pool:        pond.NewPool(workers),
		throttlers:  make(map[string]*rateThrottler),
	}
}

func (self *Governor) Start(ctx context.Context, wg *sync.WaitGroup) {
	logger := logging.GetLogger(self.config_obj, logging.FrontendComponent)
	logger.Info("<green>Starting</> the hunt governor service.")

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer self.pool.StopAndWait()

		for {
			select {
			case <-ctx.Done():
				return

			case <-utils.GetTime().After(self.config_obj.HuntTick()):
				self.ProcessTick(ctx)
			}
		}
	}()
}

// One governor pass over all hunts. Synchronous: when it returns,
// every hunt has been visited, so tests can drive the governor
// directly without the timer loop.
func (self *Governor) ProcessTick(ctx context.Context) {
	group := self.pool.NewGroup()

	for _, hunt := range self.dispatcher.ListHunts() {
		if hunt.State != HUNT_RUNNING {
			continue
		}

		hunt_id := hunt.HuntId
		group.Submit(func() {
			self.processHunt(ctx, hunt_id)
		})
	}

	_ = group.Wait()
}

func (self *Governor) throttler(hunt *Hunt) *rateThrottler {
	self.mu.Lock()
	defer self.mu.Unlock()

	t, pres := self.throttlers[hunt.HuntId]
	if !pres {
		t = newRateThrottler(hunt.Limits.ClientRate)
		self.throttlers[hunt.HuntId] = t
	}
	return t
}

func (self *Governor) processHunt(ctx context.Context, hunt_id string) {
	hunt, err := self.dispatcher.GetHunt(hunt_id)
	if err != nil || hunt.State != HUNT_RUNNING {
		return
	}

	now := utils.GetTime().Now().UnixNano()
	if hunt.Limits.ExpiryTime > 0 && now > hunt.Limits.ExpiryTime {
		self.stopHunt(hunt, "Hunt expired")
		return
	}

	self.scheduleEligibleClients(ctx, hunt)
	self.updateStats(hunt_id)
}

// Walk clients not yet considered for this hunt and start flows for
// the eligible ones. Every client is considered exactly once per
// hunt: the datastore hunt index remembers the decision so a client
// rejected today is not re-evaluated tomorrow.
func (self *Governor) scheduleEligibleClients(
	ctx context.Context, hunt *Hunt) {

	logger := logging.GetLogger(self.config_obj, logging.FrontendComponent)

	all_clients, err := self.client_info.ListClients()
	if err != nil {
		logger.Error("Hunt %v: listing clients: %v", hunt.HuntId, err)
		return
	}

	throttler := self.throttler(hunt)
	hunt_keywords := []string{hunt.HuntId}

	for _, client_id := range all_clients {
		select {
		case <-ctx.Done():
			return
		default:
		}

		current, err := self.dispatcher.GetHunt(hunt.HuntId)
		if err != nil || current.State != HUNT_RUNNING {
			return
		}

		if hunt.Limits.ClientLimit > 0 &&
			current.Stats.TotalClientsScheduled >= hunt.Limits.ClientLimit {
			return
		}

		// Already considered for this hunt?
		err = self.db.CheckIndex(self.config_obj,
			constants.HUNT_INDEX, client_id, hunt_keywords)
		if err == nil {
			continue
		}

		snapshot, err := self.client_info.GetClientSnapshot(client_id)
		if err != nil {
			// Leave the client unconsidered so it is retried on
			// the next tick.
			continue
		}

		if !foreman.EvaluateRuleSet(hunt.RuleSet, snapshot) {
			err := self.db.SetIndex(self.config_obj,
				constants.HUNT_INDEX, client_id, hunt_keywords)
			if err != nil {
				logger.Error("Hunt %v: setting hunt index: %v",
					hunt.HuntId, err)
			}
			continue
		}

		// Eligible. The rollout rate gates actual starts; once the
		// window is full we stop this pass and continue next tick.
		if !throttler.Ready() {
			return
		}

		err = self.db.SetIndex(self.config_obj,
			constants.HUNT_INDEX, client_id, hunt_keywords)
		if err != nil {
			logger.Error("Hunt %v: setting hunt index: %v",
				hunt.HuntId, err)
			continue
		}

		flow_id, err := self.flow_mgr.StartFlow(
			client_id, hunt.HuntId, hunt.Action)
		if err != nil {
			logger.Error("Hunt %v: launching flow on %v: %v",
				hunt.HuntId, client_id, err)
			continue
		}

		scheduledFlowCounter.Inc()

		err = self.dispatcher.ModifyHunt(hunt.HuntId,
			func(hunt *Hunt) error {
				hunt.Stats.TotalClientsScheduled++
				hunt.FlowIds = append(hunt.FlowIds, flow_id)
				return nil
			})
		if err != nil {
			logger.Error("Hunt %v: recording flow %v: %v",
				hunt.HuntId, flow_id, err)
		}
	}
}

// Recompute the hunt's aggregates from per flow snapshots and stop
// the hunt on any breach. Flow counters are written independently
// of this read, so the snapshot may trail reality by up to one tick.
func (self *Governor) updateStats(hunt_id string) {
	hunt, err := self.dispatcher.GetHunt(hunt_id)
	if err != nil || hunt.State != HUNT_RUNNING {
		return
	}

	stats := HuntStats{
		TotalClientsScheduled: hunt.Stats.TotalClientsScheduled,
		LastUpdateTime:        utils.GetTime().Now().UnixNano(),
	}

	var total_cpu float64
	var total_network, total_rows uint64
	all_terminal := true

	for _, flow_id := range hunt.FlowIds {
		flow, err := self.flow_mgr.GetFlow(flow_id)
		if err != nil {
			continue
		}

		total_cpu += flow.TotalCpuSeconds
		total_network += flow.TotalNetworkBytes
		total_rows += flow.TotalResultRows

		switch flow.State {
		case flows.FLOW_CRASHED:
			stats.TotalCrashes++
		case flows.FLOW_COMPLETED:
			stats.TotalCompleted++
		case flows.FLOW_ERROR:
			stats.TotalErrored++
		}

		if !flow.State.IsTerminal() {
			all_terminal = false
		}
	}

	if stats.TotalClientsScheduled > 0 {
		n := float64(stats.TotalClientsScheduled)
		stats.AvgCpuSecondsPerClient = total_cpu / n
		stats.AvgNetworkBytesPerClient = float64(total_network) / n
		stats.AvgResultsPerClient = float64(total_rows) / n
	}

	err = self.dispatcher.ModifyHunt(hunt_id, func(hunt *Hunt) error {
		hunt.Stats = stats
		return nil
	})
	if err != nil {
		return
	}
	hunt.Stats = stats

	// Fleet level breaches are controlled stop signals, not errors.
	limits := hunt.Limits
	switch {
	case limits.CrashLimit > 0 && stats.TotalCrashes >= limits.CrashLimit:
		self.stopHunt(hunt, fmt.Sprintf(
			"Crash limit exceeded: %v crashes", stats.TotalCrashes))

	case limits.AvgCpuSecondsPerClientLimit > 0 &&
		stats.AvgCpuSecondsPerClient > limits.AvgCpuSecondsPerClientLimit:
		self.stopHunt(hunt, "Average cpu per client limit exceeded")

	case limits.AvgNetworkBytesPerClientLimit > 0 &&
		stats.AvgNetworkBytesPerClient > limits.AvgNetworkBytesPerClientLimit:
		self.stopHunt(hunt, "Average network bytes per client limit exceeded")

	case limits.AvgResultsPerClientLimit > 0 &&
		stats.AvgResultsPerClient > limits.AvgResultsPerClientLimit:
		self.stopHunt(hunt, "Average results per client limit exceeded")

	case limits.ClientLimit > 0 && all_terminal &&
		stats.TotalClientsScheduled >= limits.ClientLimit:
		// Everyone we will ever schedule has finished.
		_ = self.dispatcher.ModifyHunt(hunt_id, func(hunt *Hunt) error {
			if hunt.State == HUNT_RUNNING {
				hunt.State = HUNT_COMPLETED
				hunt.StopTime = utils.GetTime().Now().UnixNano()
				runningHuntGauge.Dec()
			}
			return nil
		})
	}
}

// Stop the hunt and request cancellation of all its non terminal
// flows. Cancellation is advisory - see the flows package.
func (self *Governor) stopHunt(hunt *Hunt, reason string) {
	err := self.dispatcher.StopHunt(hunt.HuntId, reason)
	if err != nil {
		return
	}

	current, err := self.dispatcher.GetHunt(hunt.HuntId)
	if err != nil {
		current = hunt
	}

	logger := logging.GetLogger(self.config_obj, logging.FrontendComponent)
	for _, flow_id := range current.FlowIds {
		err := self.flow_mgr.CancelFlow(flow_id, "Hunt stopped: "+reason)
		if err != nil {
			logger.Error("Hunt %v: cancelling flow %v: %v",
				hunt.HuntId, flow_id, err)
		}
	}
}
