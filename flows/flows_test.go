package flows_test

import (
	"testing"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/alitto/pond/v2"
	"github.com/stretchr/testify/suite"

	"github.com/openfleet/huntmaster/flows"
	"github.com/openfleet/huntmaster/queues"
	"github.com/openfleet/huntmaster/utils"
	"github.com/openfleet/huntmaster/vtesting"
)

type FlowTestSuite struct {
	vtesting.TestSuite

	clock       *utils.MockClock
	time_closer func()
}

func (self *FlowTestSuite) SetupTest() {
	self.clock = utils.NewMockClock(time.Unix(1000000, 0))
	self.time_closer = utils.MockTime(self.clock)

	self.TestSuite.SetupTest()
}

func (self *FlowTestSuite) TearDownTest() {
	self.TestSuite.TearDownTest()
	self.time_closer()
}

func (self *FlowTestSuite) startFlow(action flows.ActionSpec) string {
	flow_id, err := self.Server.FlowMgr.StartFlow("C.1234", "", action)
	self.Require().NoError(err)
	return flow_id
}

func (self *FlowTestSuite) TestDispatchIsPullBased() {
	flow_id := self.startFlow(flows.ActionSpec{
		Name: "ListProcesses",
		Args: ordereddict.NewDict().Set("pid", 1),
	})

	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)

	// Dispatch does not wait for the client.
	self.Equal(flows.FLOW_AWAITING_CLIENT, flow.State)

	// The request sits on the durable queue until the client polls.
	tasks, err := self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Require().Len(tasks, 1)
	self.Equal(flow_id, tasks[0].FlowId)
	self.Equal("ListProcesses", tasks[0].Action)

	// Consumed - a second poll returns nothing.
	tasks, err = self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Len(tasks, 0)
}

func (self *FlowTestSuite) TestResponseFolding() {
	flow_id := self.startFlow(flows.ActionSpec{Name: "ListFiles"})

	// Two partial responses then the final status.
	err := self.Server.Queues.QueueResponse(flow_id, &queues.Response{
		ClientId:     "C.1234",
		CpuSeconds:   1.5,
		NetworkBytes: 100,
		Rows: []*ordereddict.Dict{
			ordereddict.NewDict().Set("path", "/a"),
			ordereddict.NewDict().Set("path", "/b"),
		},
	})
	self.Require().NoError(err)

	err = self.Server.FlowMgr.ProcessResponses(flow_id)
	self.Require().NoError(err)

	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_AWAITING_CLIENT, flow.State)
	self.Equal(1.5, flow.TotalCpuSeconds)
	self.Equal(uint64(100), flow.TotalNetworkBytes)
	self.Equal(uint64(2), flow.TotalResultRows)

	err = self.Server.Queues.QueueResponse(flow_id, &queues.Response{
		ClientId:   "C.1234",
		CpuSeconds: 0.5,
		Status:     &queues.Status{Ok: true},
	})
	self.Require().NoError(err)

	err = self.Server.FlowMgr.ProcessResponses(flow_id)
	self.Require().NoError(err)

	flow, err = self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_COMPLETED, flow.State)
	self.Equal(2.0, flow.TotalCpuSeconds)

	// Completion flushed the pending batch into the index.
	records, err := self.Server.Index.QueryByFlow(flow_id)
	self.Require().NoError(err)
	self.Require().Len(records, 1)
	self.Equal(uint64(2), records[0].Batch.EntryCount)
}

func (self *FlowTestSuite) TestActionFailureTerminatesOnlyThatFlow() {
	flow_id := self.startFlow(flows.ActionSpec{Name: "ScanMemory"})
	other_id := self.startFlow(flows.ActionSpec{Name: "ScanMemory"})

	err := self.Server.Queues.QueueResponse(flow_id, &queues.Response{
		ClientId: "C.1234",
		Status: &queues.Status{
			Ok:           false,
			ErrorMessage: "access denied",
		},
	})
	self.Require().NoError(err)

	self.Require().NoError(self.Server.FlowMgr.ProcessResponses(flow_id))

	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_ERROR, flow.State)
	self.Equal("access denied", flow.Status)

	other, err := self.Server.FlowMgr.GetFlow(other_id)
	self.Require().NoError(err)
	self.False(other.State.IsTerminal())
}

func (self *FlowTestSuite) TestPerClientHardLimits() {
	flow_id := self.startFlow(flows.ActionSpec{
		Name:              "ScanMemory",
		PerClientCpuLimit: 10,
	})

	// Drain the dispatch request first.
	_, err := self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)

	err = self.Server.Queues.QueueResponse(flow_id, &queues.Response{
		ClientId:   "C.1234",
		CpuSeconds: 11,
	})
	self.Require().NoError(err)

	self.Require().NoError(self.Server.FlowMgr.ProcessResponses(flow_id))

	// The breach terminates the flow - it must not fall back to
	// waiting for the client.
	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_ERROR, flow.State)
	self.Contains(flow.Status, "Cpu limit")

	// The breach queued an advisory cancel for the client.
	tasks, err := self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Require().Len(tasks, 1)
	self.NotNil(tasks[0].Cancel)

	// Further responses do not revive the flow.
	err = self.Server.Queues.QueueResponse(flow_id, &queues.Response{
		ClientId:   "C.1234",
		CpuSeconds: 1,
	})
	self.Require().NoError(err)
	self.Require().NoError(self.Server.FlowMgr.ProcessResponses(flow_id))

	flow, err = self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_ERROR, flow.State)
}

func (self *FlowTestSuite) TestPerClientNetworkLimit() {
	flow_id := self.startFlow(flows.ActionSpec{
		Name:                       "FetchFiles",
		PerClientNetworkBytesLimit: 1000,
	})

	err := self.Server.Queues.QueueResponse(flow_id, &queues.Response{
		ClientId:     "C.1234",
		NetworkBytes: 1500,
	})
	self.Require().NoError(err)

	self.Require().NoError(self.Server.FlowMgr.ProcessResponses(flow_id))

	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_ERROR, flow.State)
	self.Contains(flow.Status, "Network bytes limit")
}

func (self *FlowTestSuite) TestTerminalStatesAreImmutable() {
	flow_id := self.startFlow(flows.ActionSpec{Name: "ListFiles"})

	self.Require().NoError(self.Server.FlowMgr.CancelFlow(flow_id, "test"))

	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_CANCELLED, flow.State)

	// A late response is accepted for bookkeeping but does not
	// resurrect the flow.
	err = self.Server.Queues.QueueResponse(flow_id, &queues.Response{
		ClientId:   "C.1234",
		CpuSeconds: 5,
		Rows: []*ordereddict.Dict{
			ordereddict.NewDict().Set("late", true),
		},
		Status: &queues.Status{Ok: true},
	})
	self.Require().NoError(err)

	self.Require().NoError(self.Server.FlowMgr.ProcessResponses(flow_id))

	flow, err = self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_CANCELLED, flow.State)
	self.Equal(5.0, flow.TotalCpuSeconds)
	self.Equal(uint64(1), flow.TotalResultRows)

	// The late rows were still recorded.
	records, err := self.Server.Index.QueryByFlow(flow_id)
	self.Require().NoError(err)
	self.Require().Len(records, 1)

	// Duplicate cancellation is a no-op, not an error.
	self.NoError(self.Server.FlowMgr.CancelFlow(flow_id, "again"))
}

func (self *FlowTestSuite) TestMissedHeartbeatCrashesTheFlow() {
	flow_id := self.startFlow(flows.ActionSpec{Name: "ListFiles"})

	// Within the timeout nothing happens.
	self.clock.Advance(time.Minute)
	self.Require().NoError(self.Server.FlowMgr.CheckLiveness(flow_id))

	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.False(flow.State.IsTerminal())

	// Silence beyond the timeout crashes the flow.
	self.clock.Advance(self.ConfigObj.ClientPingTimeout())
	self.Require().NoError(self.Server.FlowMgr.CheckLiveness(flow_id))

	flow, err = self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_CRASHED, flow.State)
}

func (self *FlowTestSuite) TestTerminalFlowsAreEvictedFromMemory() {
	flow_id := self.startFlow(flows.ActionSpec{Name: "ListFiles"})
	live_id := self.startFlow(flows.ActionSpec{Name: "ListFiles"})

	self.Require().NoError(self.Server.FlowMgr.CancelFlow(flow_id, "test"))

	pool := pond.NewPool(2)
	defer pool.StopAndWait()

	self.Server.FlowMgr.PumpFlows(self.Ctx, pool, nil)

	// Only the live flow is still held in memory.
	self.Equal(1, self.Server.FlowMgr.TrackedFlows())
	self.Equal([]string{live_id}, self.Server.FlowMgr.ActiveFlows())

	// The evicted flow reloads from the datastore on demand.
	flow, err := self.Server.FlowMgr.GetFlow(flow_id)
	self.Require().NoError(err)
	self.Equal(flows.FLOW_CANCELLED, flow.State)
}

func TestFlows(t *testing.T) {
	suite.Run(t, &FlowTestSuite{})
}
