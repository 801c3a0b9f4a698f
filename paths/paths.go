// Canonical datastore locations for the various objects we manage.
package paths

import "path"

type HuntPathManager struct {
	path    string
	hunt_id string
}

func NewHuntPathManager(hunt_id string) *HuntPathManager {
	return &HuntPathManager{
		path:    path.Join("/hunts", hunt_id),
		hunt_id: hunt_id,
	}
}

func (self HuntPathManager) Path() string {
	return self.path
}

func (self HuntPathManager) HuntDirectory() string {
	return "/hunts"
}

// Where the governor keeps the hunt's aggregate stats snapshot.
func (self HuntPathManager) Stats() string {
	return path.Join(self.path, "stats")
}

type FlowPathManager struct {
	path      string
	client_id string
	flow_id   string
}

func NewFlowPathManager(client_id, flow_id string) *FlowPathManager {
	return &FlowPathManager{
		path:      path.Join("/flows", flow_id),
		client_id: client_id,
		flow_id:   flow_id,
	}
}

// The primary flow record, keyed by flow id alone.
func (self FlowPathManager) Path() string {
	return self.path
}

// A pointer under the owning client used for per client listings.
func (self FlowPathManager) ClientPointer() string {
	return path.Join("/clients", self.client_id, "flows", self.flow_id)
}

// Response messages queued by the client for the server to collect.
func (self FlowPathManager) ResponseQueue() string {
	return path.Join("/flow_queues", self.flow_id)
}

func (self FlowPathManager) Response(id string) string {
	return path.Join("/flow_queues", self.flow_id, id)
}

type ClientPathManager struct {
	path      string
	client_id string
}

func NewClientPathManager(client_id string) *ClientPathManager {
	return &ClientPathManager{
		path:      path.Join("/clients", client_id),
		client_id: client_id,
	}
}

func (self ClientPathManager) Path() string {
	return self.path
}

func (self ClientPathManager) ClientDirectory() string {
	return "/clients"
}

func (self ClientPathManager) FlowDirectory() string {
	return path.Join(self.path, "flows")
}

// Request messages queued for the client to pull.
func (self ClientPathManager) TaskQueue() string {
	return path.Join("/client_queues", self.client_id)
}

func (self ClientPathManager) Task(id string) string {
	return path.Join("/client_queues", self.client_id, id)
}

// Result records are written three times, once per lookup
// dimension. Record names sort in time order so range scans are
// just lexical walks.
type ResultPathManager struct{}

func NewResultPathManager() *ResultPathManager {
	return &ResultPathManager{}
}

func (self ResultPathManager) ByFlow(flow_id string) string {
	return path.Join("/results/by_flow", flow_id)
}

func (self ResultPathManager) ByClient(client_id string) string {
	return path.Join("/results/by_client", client_id)
}

func (self ResultPathManager) ByTime() string {
	return "/results/by_time"
}

func (self ResultPathManager) FlowRecord(flow_id, name string) string {
	return path.Join("/results/by_flow", flow_id, name)
}

func (self ResultPathManager) ClientRecord(client_id, name string) string {
	return path.Join("/results/by_client", client_id, name)
}

func (self ResultPathManager) TimeRecord(name string) string {
	return path.Join("/results/by_time", name)
}
