package hunts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/openfleet/huntmaster/flows"
	"github.com/openfleet/huntmaster/hunts"
	"github.com/openfleet/huntmaster/utils"
	"github.com/openfleet/huntmaster/vtesting"
)

type DispatcherTestSuite struct {
	vtesting.TestSuite
}

func (self *DispatcherTestSuite) TestCreateHuntValidation() {
	// No action.
	_, err := self.Server.Dispatcher.CreateHunt(nil,
		hunts.SafetyLimits{}, flows.ActionSpec{})
	self.Require().Error(err)

	// Expiry in the past.
	_, err = self.Server.Dispatcher.CreateHunt(nil,
		hunts.SafetyLimits{
			ExpiryTime: utils.GetTime().Now().
				Add(-time.Hour).UnixNano(),
		},
		flows.ActionSpec{Name: "ListFiles"})
	self.Require().Error(err)

	// New hunts wait for an explicit start.
	hunt_id, err := self.Server.Dispatcher.CreateHunt(nil,
		hunts.SafetyLimits{}, flows.ActionSpec{Name: "ListFiles"})
	self.Require().NoError(err)

	hunt, err := self.Server.Dispatcher.GetHunt(hunt_id)
	self.Require().NoError(err)
	self.Equal(hunts.HUNT_PENDING, hunt.State)
}

func (self *DispatcherTestSuite) TestPerClientCapsRideOnTheAction() {
	hunt_id, err := self.Server.Dispatcher.CreateHunt(nil,
		hunts.SafetyLimits{
			PerClientCpuLimit:          30,
			PerClientNetworkBytesLimit: 1 << 20,
		},
		flows.ActionSpec{Name: "ScanMemory"})
	self.Require().NoError(err)

	hunt, err := self.Server.Dispatcher.GetHunt(hunt_id)
	self.Require().NoError(err)
	self.Equal(30.0, hunt.Action.PerClientCpuLimit)
	self.Equal(uint64(1<<20), hunt.Action.PerClientNetworkBytesLimit)
}

func (self *DispatcherTestSuite) TestHuntsSurviveARestart() {
	hunt_id, err := self.Server.Dispatcher.CreateHunt(nil,
		hunts.SafetyLimits{ClientLimit: 5},
		flows.ActionSpec{Name: "ListFiles"})
	self.Require().NoError(err)
	self.Require().NoError(self.Server.Dispatcher.StartHunt(hunt_id))

	// A new dispatcher over the same datastore resumes with the same
	// hunts in the same states.
	restarted, err := hunts.NewHuntDispatcher(self.ConfigObj, self.Server.DB)
	self.Require().NoError(err)

	hunt, err := restarted.GetHunt(hunt_id)
	self.Require().NoError(err)
	self.Equal(hunts.HUNT_RUNNING, hunt.State)
	self.Equal(uint64(5), hunt.Limits.ClientLimit)
}

func (self *DispatcherTestSuite) TestGetHuntReturnsCopies() {
	hunt_id, err := self.Server.Dispatcher.CreateHunt(nil,
		hunts.SafetyLimits{}, flows.ActionSpec{Name: "ListFiles"})
	self.Require().NoError(err)

	hunt, err := self.Server.Dispatcher.GetHunt(hunt_id)
	self.Require().NoError(err)

	// Mutating the returned copy must not leak into the registry.
	hunt.State = hunts.HUNT_STOPPED
	hunt.FlowIds = append(hunt.FlowIds, "F.bogus")

	fresh, err := self.Server.Dispatcher.GetHunt(hunt_id)
	self.Require().NoError(err)
	self.Equal(hunts.HUNT_PENDING, fresh.State)
	self.Len(fresh.FlowIds, 0)
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, &DispatcherTestSuite{})
}
