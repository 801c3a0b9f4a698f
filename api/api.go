// The operator facing surface of the orchestration engine.
//
// This layer wires the services together and exposes the hunt/flow
// request schema. It never renders anything: the reporting and UI
// layers consume the read-only getters.
package api

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openfleet/huntmaster/blobs"
	"github.com/openfleet/huntmaster/clients"
	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
	"github.com/openfleet/huntmaster/flows"
	"github.com/openfleet/huntmaster/foreman"
	"github.com/openfleet/huntmaster/hunts"
	"github.com/openfleet/huntmaster/queues"
	"github.com/openfleet/huntmaster/results"
)

type CreateHuntRequest struct {
	// For tracing the operator request through the logs.
	RequestId string `json:"request_id,omitempty"`

	RuleSet *foreman.RuleSet   `json:"rule_set,omitempty"`
	Limits  hunts.SafetyLimits `json:"limits"`
	Action  flows.ActionSpec   `json:"action"`
}

type CreateHuntResponse struct {
	RequestId string          `json:"request_id"`
	HuntId    string          `json:"hunt_id"`
	State     hunts.HuntState `json:"state"`
}

type CreateFlowRequest struct {
	RequestId string `json:"request_id,omitempty"`

	ClientId string           `json:"client_id"`
	Action   flows.ActionSpec `json:"action"`
}

type CreateFlowResponse struct {
	RequestId string          `json:"request_id"`
	FlowId    string          `json:"flow_id"`
	State     flows.FlowState `json:"state"`
}

// One fully wired engine instance. Everything is passed explicitly;
// there are no hidden process globals to reach around.
type Server struct {
	ConfigObj *config.Config

	DB         datastore.DataStore
	BlobStore  blobs.BlobStore
	Queues     *queues.QueueManager
	ClientInfo *clients.ClientInfoManager
	Index      *results.ResultIndex
	FlowMgr    *flows.FlowManager
	Dispatcher *hunts.HuntDispatcher
	Governor   *hunts.Governor
}

func NewServer(config_obj *config.Config) (*Server, error) {
	db, err := datastore.GetDB(config_obj)
	if err != nil {
		return nil, err
	}

	blob_store, err := blobs.GetBlobStore(config_obj)
	if err != nil {
		return nil, err
	}

	queue_mgr := queues.NewQueueManager(config_obj, db)
	client_info := clients.NewClientInfoManager(config_obj, db)
	index := results.NewResultIndex(config_obj, db)

	flow_mgr := flows.NewFlowManager(
		config_obj, db, blob_store, queue_mgr, client_info, index)

	dispatcher, err := hunts.NewHuntDispatcher(config_obj, db)
	if err != nil {
		return nil, err
	}

	governor := hunts.NewGovernor(
		config_obj, db, dispatcher, flow_mgr, client_info)

	return &Server{
		ConfigObj:  config_obj,
		DB:         db,
		BlobStore:  blob_store,
		Queues:     queue_mgr,
		ClientInfo: client_info,
		Index:      index,
		FlowMgr:    flow_mgr,
		Dispatcher: dispatcher,
		Governor:   governor,
	}, nil
}

func (self *Server) Start(ctx context.Context, wg *sync.WaitGroup) {
	self.Governor.Start(ctx, wg)
	self.FlowMgr.Start(ctx, wg)
}

// Invalid rules or limits surface synchronously here; everything
// after creation is reported through hunt status only.
func (self *Server) CreateHunt(
	req *CreateHuntRequest) (*CreateHuntResponse, error) {

	if req.RequestId == "" {
		req.RequestId = uuid.New().String()
	}

	hunt_id, err := self.Dispatcher.CreateHunt(
		req.RuleSet, req.Limits, req.Action)
	if err != nil {
		return nil, err
	}

	// Hunts start scheduling immediately on creation.
	err = self.Dispatcher.StartHunt(hunt_id)
	if err != nil {
		return nil, err
	}

	hunt, err := self.Dispatcher.GetHunt(hunt_id)
	if err != nil {
		return nil, err
	}

	return &CreateHuntResponse{
		RequestId: req.RequestId,
		HuntId:    hunt_id,
		State:     hunt.State,
	}, nil
}

func (self *Server) CreateFlow(
	req *CreateFlowRequest) (*CreateFlowResponse, error) {

	if req.RequestId == "" {
		req.RequestId = uuid.New().String()
	}

	flow_id, err := self.FlowMgr.StartFlow(req.ClientId, "", req.Action)
	if err != nil {
		return nil, err
	}

	flow, err := self.FlowMgr.GetFlow(flow_id)
	if err != nil {
		return nil, err
	}

	return &CreateFlowResponse{
		RequestId: req.RequestId,
		FlowId:    flow_id,
		State:     flow.State,
	}, nil
}

// Read-only accessors for the reporting layer.

func (self *Server) GetHunt(hunt_id string) (*hunts.Hunt, error) {
	return self.Dispatcher.GetHunt(hunt_id)
}

func (self *Server) ListHunts() []*hunts.Hunt {
	return self.Dispatcher.ListHunts()
}

func (self *Server) GetFlow(flow_id string) (*flows.FlowContext, error) {
	return self.FlowMgr.GetFlow(flow_id)
}

// An explicit operator stop. Terminal like any other stop: the
// hunt's active flows get advisory cancellations.
func (self *Server) StopHunt(hunt_id, reason string) error {
	err := self.Dispatcher.StopHunt(hunt_id, reason)
	if err != nil {
		return err
	}

	hunt, err := self.Dispatcher.GetHunt(hunt_id)
	if err != nil {
		return err
	}

	for _, flow_id := range hunt.FlowIds {
		err := self.FlowMgr.CancelFlow(flow_id, "Hunt stopped: "+reason)
		if err != nil {
			return err
		}
	}
	return nil
}

func (self *Server) CancelFlow(flow_id, reason string) error {
	return self.FlowMgr.CancelFlow(flow_id, reason)
}

func (self *Server) QueryResultsByFlow(
	flow_id string) ([]*results.ResultRecord, error) {
	return self.Index.QueryByFlow(flow_id)
}

func (self *Server) QueryResultsByClient(
	client_id string) ([]*results.ResultRecord, error) {
	return self.Index.QueryByClient(client_id)
}

func (self *Server) QueryResultsByTimeRange(
	start, end int64) ([]*results.ResultRecord, error) {
	return self.Index.QueryByTimeRange(start, end)
}
