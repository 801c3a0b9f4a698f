package queues_test

import (
	"fmt"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/suite"

	"github.com/openfleet/huntmaster/paths"
	"github.com/openfleet/huntmaster/queues"
	"github.com/openfleet/huntmaster/vtesting"
)

type QueueTestSuite struct {
	vtesting.TestSuite
}

func (self *QueueTestSuite) TestTasksAreConsumedInOrder() {
	for i := 0; i < 5; i++ {
		err := self.Server.Queues.QueueMessageForClient("C.1234",
			&queues.Request{
				FlowId: fmt.Sprintf("F.%d", i),
				Action: "ListFiles",
			})
		self.Require().NoError(err)
	}

	tasks, err := self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Require().Len(tasks, 5)

	for i, task := range tasks {
		self.Equal(fmt.Sprintf("F.%d", i), task.FlowId)
	}

	// The pull consumed the queue.
	tasks, err = self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Len(tasks, 0)
}

func (self *QueueTestSuite) TestQueuesAreIsolatedPerClient() {
	err := self.Server.Queues.QueueMessageForClient("C.aaaa",
		&queues.Request{FlowId: "F.1", Action: "ListFiles"})
	self.Require().NoError(err)

	err = self.Server.Queues.QueueMessageForClient("C.bbbb",
		&queues.Request{FlowId: "F.2", Action: "ListFiles"})
	self.Require().NoError(err)

	tasks, err := self.Server.Queues.GetClientTasks("C.aaaa")
	self.Require().NoError(err)
	self.Require().Len(tasks, 1)
	self.Equal("F.1", tasks[0].FlowId)

	// Draining one client's queue leaves the other untouched.
	tasks, err = self.Server.Queues.GetClientTasks("C.bbbb")
	self.Require().NoError(err)
	self.Require().Len(tasks, 1)
	self.Equal("F.2", tasks[0].FlowId)
}

func (self *QueueTestSuite) TestMessagesOutliveTheManager() {
	err := self.Server.Queues.QueueMessageForClient("C.1234",
		&queues.Request{FlowId: "F.1", Action: "ListFiles"})
	self.Require().NoError(err)

	err = self.Server.Queues.QueueResponse("F.1", &queues.Response{
		ClientId: "C.1234",
		Rows: []*ordereddict.Dict{
			ordereddict.NewDict().Set("path", "/a"),
		},
	})
	self.Require().NoError(err)

	// A fresh manager over the same datastore sees the pending
	// messages - nothing lives only in process memory.
	restarted := queues.NewQueueManager(self.ConfigObj, self.Server.DB)

	tasks, err := restarted.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Require().Len(tasks, 1)
	self.Equal("F.1", tasks[0].FlowId)

	responses, err := restarted.GetFlowResponses("F.1")
	self.Require().NoError(err)
	self.Require().Len(responses, 1)
	self.Require().Len(responses[0].Rows, 1)
}

func (self *QueueTestSuite) TestUndecodableMessagesAreDropped() {
	// Plant a message that can not decode as a Request.
	client_path_manager := paths.NewClientPathManager("C.1234")
	err := self.Server.DB.SetSubject(self.ConfigObj,
		client_path_manager.Task("msg.corrupt"), []int{1, 2, 3})
	self.Require().NoError(err)

	err = self.Server.Queues.QueueMessageForClient("C.1234",
		&queues.Request{FlowId: "F.1", Action: "ListFiles"})
	self.Require().NoError(err)

	// The good message is delivered, the corrupt one dropped.
	tasks, err := self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Require().Len(tasks, 1)
	self.Equal("F.1", tasks[0].FlowId)

	// And it does not come back on the next poll.
	tasks, err = self.Server.Queues.GetClientTasks("C.1234")
	self.Require().NoError(err)
	self.Len(tasks, 0)

	children, err := self.Server.DB.ListChildren(self.ConfigObj,
		client_path_manager.TaskQueue())
	self.Require().NoError(err)
	self.Len(children, 0)
}

func TestQueues(t *testing.T) {
	suite.Run(t, &QueueTestSuite{})
}
