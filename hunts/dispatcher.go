package hunts

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
	"github.com/openfleet/huntmaster/flows"
	"github.com/openfleet/huntmaster/foreman"
	"github.com/openfleet/huntmaster/logging"
	"github.com/openfleet/huntmaster/paths"
	"github.com/openfleet/huntmaster/utils"
)

var (
	runningHuntGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "running_hunts",
		Help: "Number of hunts currently in the RUNNING state.",
	})
)

// An explicit in-memory registry of hunts, loaded from the
// datastore at process start and flushed back on every state
// change. It is handed to the governor rather than being a hidden
// process global.
type HuntDispatcher struct {
	mu sync.Mutex

	config_obj *config.Config
	db         datastore.DataStore

	hunts map[string]*Hunt
}

func NewHuntDispatcher(config_obj *config.Config,
	db datastore.DataStore) (*HuntDispatcher, error) {

	self := &HuntDispatcher{
		config_obj: config_obj,
		db:         db,
		hunts:      make(map[string]*Hunt),
	}

	// Reload existing hunts so a restart resumes where we left
	// off.
	children, err := db.ListChildren(config_obj,
		paths.NewHuntPathManager("").HuntDirectory())
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		hunt := &Hunt{}
		err := db.GetSubject(config_obj, child, hunt)
		if err != nil {
			continue
		}
		self.hunts[hunt.HuntId] = hunt

		if hunt.State == HUNT_RUNNING {
			runningHuntGauge.Inc()
		}
	}

	return self, nil
}

// Invalid limits or rules are the only errors surfaced
// synchronously to the creating operator; everything later is
// absorbed into hunt status.
func (self *HuntDispatcher) CreateHunt(
	rule_set *foreman.RuleSet,
	limits SafetyLimits,
	action flows.ActionSpec) (string, error) {

	if action.Name == "" {
		return "", errors.New("No action name")
	}

	err := limits.Validate()
	if err != nil {
		return "", err
	}

	if rule_set != nil {
		err := rule_set.Validate()
		if err != nil {
			return "", err
		}
	}

	// The hunt's hard per client caps ride along on every flow it
	// schedules.
	action.PerClientCpuLimit = limits.PerClientCpuLimit
	action.PerClientNetworkBytesLimit = limits.PerClientNetworkBytesLimit

	hunt := &Hunt{
		HuntId:     utils.NewHuntId(),
		RuleSet:    rule_set,
		Limits:     limits,
		Action:     action,
		State:      HUNT_PENDING,
		CreateTime: utils.GetTime().Now().UnixNano(),
	}

	self.mu.Lock()
	self.hunts[hunt.HuntId] = hunt
	self.mu.Unlock()

	err = self.flush(hunt)
	if err != nil {
		return "", err
	}

	logger := logging.GetLogger(self.config_obj, logging.FrontendComponent)
	logger.Info("Created hunt %v (%v)", hunt.HuntId, action.Name)

	return hunt.HuntId, nil
}

// Callers must not hold self.mu.
func (self *HuntDispatcher) flush(hunt *Hunt) error {
	self.mu.Lock()
	snapshot := hunt.Copy()
	self.mu.Unlock()

	return self.db.SetSubject(self.config_obj,
		paths.NewHuntPathManager(snapshot.HuntId).Path(), snapshot)
}

// Apply a mutation under the dispatcher lock and flush the result.
// The callback returning an error aborts the mutation.
func (self *HuntDispatcher) ModifyHunt(
	hunt_id string, cb func(hunt *Hunt) error) error {

	self.mu.Lock()
	hunt, pres := self.hunts[hunt_id]
	if !pres {
		self.mu.Unlock()
		return utils.NotFoundError
	}

	err := cb(hunt)
	if err != nil {
		self.mu.Unlock()
		return err
	}
	snapshot := hunt.Copy()
	self.mu.Unlock()

	return self.db.SetSubject(self.config_obj,
		paths.NewHuntPathManager(snapshot.HuntId).Path(), snapshot)
}

func (self *HuntDispatcher) GetHunt(hunt_id string) (*Hunt, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	hunt, pres := self.hunts[hunt_id]
	if !pres {
		return nil, utils.NotFoundError
	}
	return hunt.Copy(), nil
}

func (self *HuntDispatcher) ListHunts() []*Hunt {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]*Hunt, 0, len(self.hunts))
	for _, hunt := range self.hunts {
		result = append(result, hunt.Copy())
	}
	return result
}

func (self *HuntDispatcher) StartHunt(hunt_id string) error {
	err := self.ModifyHunt(hunt_id, func(hunt *Hunt) error {
		if hunt.State.IsTerminal() {
			return utils.AlreadyTerminatedError
		}
		if hunt.State == HUNT_RUNNING {
			return nil
		}

		hunt.State = HUNT_RUNNING
		hunt.StartTime = utils.GetTime().Now().UnixNano()
		runningHuntGauge.Inc()
		return nil
	})
	return err
}

// Terminal - a stopped hunt never restarts. Stopping an already
// terminal hunt is a no-op to tolerate duplicate stop requests.
func (self *HuntDispatcher) StopHunt(hunt_id, reason string) error {
	stopped := false
	err := self.ModifyHunt(hunt_id, func(hunt *Hunt) error {
		if hunt.State.IsTerminal() {
			return nil
		}

		if hunt.State == HUNT_RUNNING {
			runningHuntGauge.Dec()
		}
		hunt.State = HUNT_STOPPED
		hunt.StopReason = reason
		hunt.StopTime = utils.GetTime().Now().UnixNano()
		stopped = true
		return nil
	})

	if err == nil && stopped {
		logger := logging.GetLogger(
			self.config_obj, logging.FrontendComponent)
		logger.Info("Stopped hunt %v: %v", hunt_id, reason)
	}
	return err
}
