package flows

import (
	"fmt"

	"github.com/openfleet/huntmaster/logging"
	"github.com/openfleet/huntmaster/queues"
	"github.com/openfleet/huntmaster/results"
	"github.com/openfleet/huntmaster/utils"
)

// Poll the flow's response queue and fold everything pending into
// its state. Runs on the server tick; each call owns the flow
// exclusively for its duration.
func (self *FlowManager) ProcessResponses(flow_id string) error {
	flow, err := self.getTracked(flow_id)
	if err != nil {
		return err
	}

	responses, err := self.queue_mgr.GetFlowResponses(flow_id)
	if err != nil {
		return err
	}
	if len(responses) == 0 {
		return nil
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()

	for _, response := range responses {
		self.processResponse(flow, response)
	}

	return self.flush(flow.context)
}

// Callers must hold flow.mu.
func (self *FlowManager) processResponse(
	flow *trackedFlow, response *queues.Response) {

	context := flow.context

	// Late deliveries after a terminal state are accepted and
	// recorded but can not resurrect the flow.
	terminal := context.State.IsTerminal()

	if !terminal {
		context.State = FLOW_PROCESSING
	}

	context.LastActiveTime = utils.GetTime().Now().UnixNano()
	context.TotalCpuSeconds += response.CpuSeconds
	context.TotalNetworkBytes += response.NetworkBytes

	if len(response.Rows) > 0 {
		context.TotalResultRows += uint64(len(response.Rows))
		self.routeRows(flow, response)
	}

	if terminal {
		// Do not leave late rows sitting in an open batch - the
		// flow will not see another flush.
		for _, batcher := range flow.batchers {
			_ = batcher.Flush()
		}
		return
	}

	// The final message carries the action's status.
	if response.Status != nil {
		switch {
		case response.Status.Crash:
			self.terminate(flow, FLOW_CRASHED,
				response.Status.ErrorMessage)

		case !response.Status.Ok:
			context.Backtrace = response.Status.Backtrace
			self.terminate(flow, FLOW_ERROR,
				response.Status.ErrorMessage)

		default:
			self.terminate(flow, FLOW_COMPLETED, "")
		}
		return
	}

	if self.checkResourceLimits(flow) {
		return
	}

	// Wait for the next poll cycle.
	context.State = FLOW_AWAITING_CLIENT
}

// Route result rows through the batch pipeline. Only the small
// batch summaries enter the result index; row data goes to the blob
// store.
func (self *FlowManager) routeRows(
	flow *trackedFlow, response *queues.Response) {

	payload_type := response.PayloadType
	if payload_type == "" {
		payload_type = "generic"
	}

	batcher, pres := flow.batchers[payload_type]
	if !pres {
		context := flow.context
		batcher = results.NewBatcher(
			self.config_obj, self.blob_store,
			func(record *results.ResultRecord) error {
				flow.context.TotalBatches++
				return self.index.Put(record)
			},
			context.ClientId, context.FlowId, payload_type)
		flow.batchers[payload_type] = batcher
	}

	for _, row := range response.Rows {
		err := batcher.Add(row)
		if err != nil {
			logger := logging.GetLogger(
				self.config_obj, logging.FrontendComponent)
			logger.Error("Batching results for %v: %v",
				flow.context.FlowId, err)
		}
	}
}

// It is hard to predict exactly how much data an action will
// produce, so each flow carries hard caps independent of any fleet
// wide hunt limits. A breach terminates only this flow; reports true
// if it did. Callers must hold flow.mu.
func (self *FlowManager) checkResourceLimits(flow *trackedFlow) bool {
	context := flow.context

	if context.Action.PerClientCpuLimit > 0 &&
		context.TotalCpuSeconds > context.Action.PerClientCpuLimit {
		self.terminate(flow, FLOW_ERROR, "Cpu limit exceeded")
		self.sendCancelMessage(context.ClientId, context.FlowId)
		return true
	}

	if context.Action.PerClientNetworkBytesLimit > 0 &&
		context.TotalNetworkBytes > context.Action.PerClientNetworkBytesLimit {
		self.terminate(flow, FLOW_ERROR, "Network bytes limit exceeded")
		self.sendCancelMessage(context.ClientId, context.FlowId)
		return true
	}

	return false
}

// Best effort - the flow is already terminal either way.
func (self *FlowManager) sendCancelMessage(client_id, flow_id string) {
	err := self.queue_mgr.QueueMessageForClient(client_id,
		&queues.Request{
			FlowId: flow_id,
			Cancel: &queues.Cancel{},
		})
	if err != nil {
		logger := logging.GetLogger(
			self.config_obj, logging.FrontendComponent)
		logger.Error("Queueing cancel for %v: %v", flow_id, err)
	}
}

// Liveness is inferred from silence: there is no connection whose
// loss we could detect. A client that has neither pinged nor
// responded within the timeout crashes all its active flows.
func (self *FlowManager) CheckLiveness(flow_id string) error {
	flow, err := self.getTracked(flow_id)
	if err != nil {
		return err
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()

	context := flow.context
	if context.State.IsTerminal() {
		return nil
	}

	last_heard := context.LastActiveTime
	info, err := self.client_info.GetClientSnapshot(context.ClientId)
	if err == nil && info.Ping > last_heard {
		last_heard = info.Ping
	}

	timeout := self.config_obj.ClientPingTimeout()
	now := utils.GetTime().Now()
	if now.UnixNano()-last_heard > timeout.Nanoseconds() {
		self.terminate(flow, FLOW_CRASHED, fmt.Sprintf(
			"No heartbeat from %v for more than %v",
			context.ClientId, timeout))
	}

	return nil
}
