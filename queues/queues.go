// Durable pull based message queues between the server and its
// intermittently connected clients.
//
// There is no live channel to a client: the server leaves request
// messages on the client's queue and the client collects them on its
// next poll. Responses travel the same way in reverse, keyed by
// flow. Messages survive process restarts until consumed.
package queues

import (
	"fmt"
	"sync/atomic"

	"github.com/Velocidex/ordereddict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
	"github.com/openfleet/huntmaster/logging"
	"github.com/openfleet/huntmaster/paths"
	"github.com/openfleet/huntmaster/utils"
)

var (
	g_id uint64

	queuedRequestCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queued_client_requests",
		Help: "Total number of request messages queued for clients.",
	})

	queuedResponseCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queued_flow_responses",
		Help: "Total number of response messages queued for flows.",
	})
)

type Cancel struct{}

// A request message addressed to one client. Requests either carry
// an action to execute under a new flow, or a cancellation notice
// for a running one.
type Request struct {
	TaskId   string            `json:"task_id"`
	ClientId string            `json:"client_id"`
	FlowId   string            `json:"flow_id"`
	Action   string            `json:"action,omitempty"`
	Args     *ordereddict.Dict `json:"args,omitempty"`
	Cancel   *Cancel           `json:"cancel,omitempty"`
}

// The final status a client reports for an action.
type Status struct {
	Ok           bool   `json:"ok"`
	Crash        bool   `json:"crash,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Backtrace    string `json:"backtrace,omitempty"`
}

// One response message from a client for one flow. A flow usually
// receives many of these before the final one carrying a Status.
type Response struct {
	ResponseId string `json:"response_id"`
	FlowId     string `json:"flow_id"`
	ClientId   string `json:"client_id"`
	Timestamp  int64  `json:"timestamp"`

	// Resource accounting deltas for this message only.
	CpuSeconds   float64 `json:"cpu_seconds,omitempty"`
	NetworkBytes uint64  `json:"network_bytes,omitempty"`

	// Result rows produced by the action, tagged with their payload
	// type for routing and batching.
	PayloadType string              `json:"payload_type,omitempty"`
	Rows        []*ordereddict.Dict `json:"rows,omitempty"`

	// Set on the last message of the action.
	Status *Status `json:"status,omitempty"`
}

type QueueManager struct {
	config_obj *config.Config
	db         datastore.DataStore
}

func NewQueueManager(config_obj *config.Config,
	db datastore.DataStore) *QueueManager {
	return &QueueManager{
		config_obj: config_obj,
		db:         db,
	}
}

// Message ids sort lexically in arrival order so queue consumption
// preserves enqueue order within a process.
func nextMessageId() string {
	return fmt.Sprintf("msg.%020d.%08d",
		utils.GetTime().Now().UnixNano(),
		atomic.AddUint64(&g_id, 1))
}

// Fire and forget - never blocks waiting for the client to be
// reachable.
func (self *QueueManager) QueueMessageForClient(
	client_id string, req *Request) error {

	req.ClientId = client_id
	if req.TaskId == "" {
		req.TaskId = nextMessageId()
	}

	client_path_manager := paths.NewClientPathManager(client_id)
	err := self.db.SetSubject(self.config_obj,
		client_path_manager.Task(req.TaskId), req)
	if err == nil {
		queuedRequestCounter.Inc()
	}
	return err
}

// The client pull: returns and consumes all pending requests for
// the client.
func (self *QueueManager) GetClientTasks(
	client_id string) ([]*Request, error) {

	client_path_manager := paths.NewClientPathManager(client_id)
	children, err := self.db.ListChildren(self.config_obj,
		client_path_manager.TaskQueue())
	if err != nil {
		return nil, err
	}

	result := []*Request{}
	for _, child := range children {
		req := &Request{}
		err := self.db.GetSubject(self.config_obj, child, req)
		if err != nil {
			// Undecodable messages are dropped, not retried on
			// every poll.
			logger := logging.GetLogger(
				self.config_obj, logging.FrontendComponent)
			logger.Error("Dropping undecodable task %v: %v", child, err)
		} else {
			result = append(result, req)
		}

		err = self.db.DeleteSubject(self.config_obj, child)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (self *QueueManager) QueueResponse(
	flow_id string, resp *Response) error {

	resp.FlowId = flow_id
	if resp.ResponseId == "" {
		resp.ResponseId = nextMessageId()
	}
	if resp.Timestamp == 0 {
		resp.Timestamp = utils.GetTime().Now().UnixNano()
	}

	flow_path_manager := paths.NewFlowPathManager(resp.ClientId, flow_id)
	err := self.db.SetSubject(self.config_obj,
		flow_path_manager.Response(resp.ResponseId), resp)
	if err == nil {
		queuedResponseCounter.Inc()
	}
	return err
}

// The server pull: returns and consumes all pending responses for
// the flow.
func (self *QueueManager) GetFlowResponses(
	flow_id string) ([]*Response, error) {

	flow_path_manager := paths.NewFlowPathManager("", flow_id)
	children, err := self.db.ListChildren(self.config_obj,
		flow_path_manager.ResponseQueue())
	if err != nil {
		return nil, err
	}

	result := []*Response{}
	for _, child := range children {
		resp := &Response{}
		err := self.db.GetSubject(self.config_obj, child, resp)
		if err != nil {
			logger := logging.GetLogger(
				self.config_obj, logging.FrontendComponent)
			logger.Error("Dropping undecodable response %v: %v", child, err)
		} else {
			result = append(result, resp)
		}

		err = self.db.DeleteSubject(self.config_obj, child)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}
