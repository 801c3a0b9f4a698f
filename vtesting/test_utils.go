// Shared fixtures for service level tests.
package vtesting

import (
	"context"
	"sync"

	"github.com/stretchr/testify/suite"

	"github.com/openfleet/huntmaster/api"
	"github.com/openfleet/huntmaster/blobs"
	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
)

// A fully wired in-memory engine. SetupTest clears the shared
// memory stores so each test starts from an empty deployment.
type TestSuite struct {
	suite.Suite

	ConfigObj *config.Config
	Server    *api.Server

	Ctx    context.Context
	cancel context.CancelFunc
	Wg     *sync.WaitGroup
}

func (self *TestSuite) SetupTest() {
	self.ConfigObj = config.GetDefaultConfig()

	db, err := datastore.GetDB(self.ConfigObj)
	self.Require().NoError(err)
	db.(*datastore.MemoryDataStore).Clear()

	blob_store, err := blobs.GetBlobStore(self.ConfigObj)
	self.Require().NoError(err)
	blob_store.(*blobs.MemoryBlobStore).Clear()

	self.Server, err = api.NewServer(self.ConfigObj)
	self.Require().NoError(err)

	self.Ctx, self.cancel = context.WithCancel(context.Background())
	self.Wg = &sync.WaitGroup{}
}

func (self *TestSuite) TearDownTest() {
	if self.cancel != nil {
		self.cancel()
	}
	self.Wg.Wait()
	self.Server.ClientInfo.Close()
}
