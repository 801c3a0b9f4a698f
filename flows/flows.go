// Per (client, action) units of work.
//
// A flow dispatches one action to one client over the pull based
// queue and folds the client's response messages into accumulated
// state. Transitions of a single flow are serialized by a per flow
// lock; different flows never contend with each other.
package flows

import (
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/blobs"
	"github.com/openfleet/huntmaster/clients"
	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
	"github.com/openfleet/huntmaster/logging"
	"github.com/openfleet/huntmaster/paths"
	"github.com/openfleet/huntmaster/queues"
	"github.com/openfleet/huntmaster/results"
	"github.com/openfleet/huntmaster/utils"
)

var (
	startedFlowCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "started_flows",
		Help: "Total number of flows started.",
	})

	crashedFlowCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crashed_flows",
		Help: "Total number of flows terminated by a missed heartbeat or client fault.",
	})
)

type FlowState string

const (
	FLOW_SCHEDULED       FlowState = "SCHEDULED"
	FLOW_DISPATCHED      FlowState = "DISPATCHED"
	FLOW_AWAITING_CLIENT FlowState = "AWAITING_CLIENT"
	FLOW_PROCESSING      FlowState = "PROCESSING"
	FLOW_COMPLETED       FlowState = "COMPLETED"
	FLOW_ERROR           FlowState = "ERROR"
	FLOW_CRASHED         FlowState = "CRASHED"
	FLOW_CANCELLED       FlowState = "CANCELLED"
)

func (self FlowState) IsTerminal() bool {
	switch self {
	case FLOW_COMPLETED, FLOW_ERROR, FLOW_CRASHED, FLOW_CANCELLED:
		return true
	}
	return false
}

// What to run and under which per flow caps. Hunts copy their per
// client hard limits in here when they schedule a flow.
type ActionSpec struct {
	Name string            `json:"name"`
	Args *ordereddict.Dict `json:"args,omitempty"`

	PerClientCpuLimit          float64 `json:"per_client_cpu_limit,omitempty"`
	PerClientNetworkBytesLimit uint64  `json:"per_client_network_bytes_limit,omitempty"`
}

// The full persisted state of one flow. Mutated only under the per
// flow lock held by the manager; readers get copies.
type FlowContext struct {
	FlowId   string `json:"flow_id"`
	ClientId string `json:"client_id"`

	// Empty for standalone flows.
	HuntId string `json:"hunt_id,omitempty"`

	Action ActionSpec `json:"action"`

	State     FlowState `json:"state"`
	Status    string    `json:"status,omitempty"`
	Backtrace string    `json:"backtrace,omitempty"`

	CreateTime int64 `json:"create_time"`
	KillTime   int64 `json:"kill_time,omitempty"`

	// Monotonically accumulated resource usage. Read via snapshot
	// by the hunt governor - slightly stale reads are fine.
	TotalCpuSeconds   float64 `json:"total_cpu_seconds"`
	TotalNetworkBytes uint64  `json:"total_network_bytes"`
	TotalResultRows   uint64  `json:"total_result_rows"`
	TotalBatches      uint64  `json:"total_batches"`

	// The last time a response or heartbeat was folded in.
	LastActiveTime int64 `json:"last_active_time"`
}

type trackedFlow struct {
	mu sync.Mutex

	context *FlowContext

	// One batcher per payload type seen on this flow.
	batchers map[string]*results.Batcher
}

// Owns every live flow in the process. All transitions pass through
// here so they can be serialized per flow and flushed to the
// datastore on every state change.
type FlowManager struct {
	mu sync.Mutex

	config_obj  *config.Config
	db          datastore.DataStore
	blob_store  blobs.BlobStore
	queue_mgr   *queues.QueueManager
	client_info *clients.ClientInfoManager
	index       *results.ResultIndex

	flows map[string]*trackedFlow
}

func NewFlowManager(
	config_obj *config.Config,
	db datastore.DataStore,
	blob_store blobs.BlobStore,
	queue_mgr *queues.QueueManager,
	client_info *clients.ClientInfoManager,
	index *results.ResultIndex) *FlowManager {

	return &FlowManager{
		config_obj:  config_obj,
		db:          db,
		blob_store:  blob_store,
		queue_mgr:   queue_mgr,
		client_info: client_info,
		index:       index,
		flows:       make(map[string]*trackedFlow),
	}
}

func (self *FlowManager) getTracked(flow_id string) (*trackedFlow, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	flow, pres := self.flows[flow_id]
	if !pres {
		// Reload from the datastore - the flow may predate this
		// process.
		context := &FlowContext{}
		err := self.db.GetSubject(self.config_obj,
			paths.NewFlowPathManager("", flow_id).Path(), context)
		if err != nil {
			return nil, err
		}

		flow = &trackedFlow{
			context:  context,
			batchers: make(map[string]*results.Batcher),
		}
		self.flows[flow_id] = flow
	}
	return flow, nil
}

func (self *FlowManager) flush(context *FlowContext) error {
	flow_path_manager := paths.NewFlowPathManager(
		context.ClientId, context.FlowId)
	return self.db.SetSubject(self.config_obj,
		flow_path_manager.Path(), context)
}

// Create the flow and dispatch its request. Dispatch is fire and
// forget into the durable queue: the client may be offline for an
// arbitrary time and will pick the request up on its next poll.
func (self *FlowManager) StartFlow(
	client_id, hunt_id string, action ActionSpec) (string, error) {

	if action.Name == "" {
		return "", errors.New("No action name")
	}
	if !clients.ValidateClientId(client_id) {
		return "", errors.Errorf("Invalid client id %q", client_id)
	}

	now := utils.GetTime().Now().UnixNano()
	context := &FlowContext{
		FlowId:         utils.NewFlowId(),
		ClientId:       client_id,
		HuntId:         hunt_id,
		Action:         action,
		State:          FLOW_SCHEDULED,
		CreateTime:     now,
		LastActiveTime: now,
	}

	flow := &trackedFlow{
		context:  context,
		batchers: make(map[string]*results.Batcher),
	}

	self.mu.Lock()
	self.flows[context.FlowId] = flow
	self.mu.Unlock()

	flow.mu.Lock()
	defer flow.mu.Unlock()

	err := self.queue_mgr.QueueMessageForClient(client_id,
		&queues.Request{
			FlowId: context.FlowId,
			Action: action.Name,
			Args:   action.Args,
		})
	if err != nil {
		return "", err
	}
	context.State = FLOW_DISPATCHED

	// Pending pickup - nothing to wait for.
	context.State = FLOW_AWAITING_CLIENT

	err = self.flush(context)
	if err != nil {
		return "", err
	}

	err = self.db.SetSubject(self.config_obj,
		paths.NewFlowPathManager(client_id, context.FlowId).ClientPointer(),
		true)
	if err != nil {
		return "", err
	}

	startedFlowCounter.Inc()

	logger := logging.GetLogger(self.config_obj, logging.FrontendComponent)
	logger.Info("Started flow %v (%v) on %v",
		context.FlowId, action.Name, client_id)

	return context.FlowId, nil
}

// A read only copy for the governor and the API surface.
func (self *FlowManager) GetFlow(flow_id string) (*FlowContext, error) {
	flow, err := self.getTracked(flow_id)
	if err != nil {
		return nil, err
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()

	snapshot := *flow.context
	return &snapshot, nil
}

func (self *FlowManager) ListFlows(client_id string) ([]string, error) {
	children, err := self.db.ListChildren(self.config_obj,
		paths.NewClientPathManager(client_id).FlowDirectory())
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(children))
	for _, child := range children {
		parts := child[len(paths.NewClientPathManager(
			client_id).FlowDirectory())+1:]
		result = append(result, parts)
	}
	return result, nil
}

// Cancellation is advisory: the terminal state is recorded
// immediately server side, but an already dispatched action keeps
// running on a disconnected agent. Its late responses are accepted
// for bookkeeping and never resurrect the flow.
func (self *FlowManager) CancelFlow(flow_id, reason string) error {
	flow, err := self.getTracked(flow_id)
	if err != nil {
		return err
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()

	if flow.context.State.IsTerminal() {
		// Duplicate cancellations are no-ops.
		return nil
	}

	self.terminate(flow, FLOW_CANCELLED, reason)

	// Best effort notice to the client.
	return self.queue_mgr.QueueMessageForClient(flow.context.ClientId,
		&queues.Request{
			FlowId: flow_id,
			Cancel: &queues.Cancel{},
		})
}

// Callers must hold flow.mu.
func (self *FlowManager) terminate(
	flow *trackedFlow, state FlowState, status string) {

	for _, batcher := range flow.batchers {
		err := batcher.Flush()
		if err != nil {
			logger := logging.GetLogger(
				self.config_obj, logging.FrontendComponent)
			logger.Error("Flushing batches for %v: %v",
				flow.context.FlowId, err)
		}
	}

	flow.context.State = state
	flow.context.Status = status
	flow.context.KillTime = utils.GetTime().Now().UnixNano()

	if state == FLOW_CRASHED {
		crashedFlowCounter.Inc()
	}

	err := self.flush(flow.context)
	if err != nil {
		logger := logging.GetLogger(
			self.config_obj, logging.FrontendComponent)
		logger.Error("Flushing flow %v: %v", flow.context.FlowId, err)
	}
}
