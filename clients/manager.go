package clients

import (
	"time"

	"github.com/Velocidex/ttlcache/v2"
	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
	"github.com/openfleet/huntmaster/paths"
	"github.com/openfleet/huntmaster/utils"
)

// Read access used by the rule evaluator and the hunt governor.
type AttributeSource interface {
	ListClients() ([]string, error)
	GetClientSnapshot(client_id string) (*ClientInfo, error)
}

// Caches client records in front of the datastore. Snapshots served
// from the cache may be slightly stale which is acceptable for rule
// evaluation against a changing fleet.
type ClientInfoManager struct {
	config_obj *config.Config
	db         datastore.DataStore

	cache *ttlcache.Cache
}

func NewClientInfoManager(config_obj *config.Config,
	db datastore.DataStore) *ClientInfoManager {

	cache := ttlcache.NewCache()
	cache.SetTTL(10 * time.Second)
	cache.SkipTTLExtensionOnHit(true)

	return &ClientInfoManager{
		config_obj: config_obj,
		db:         db,
		cache:      cache,
	}
}

func (self *ClientInfoManager) ListClients() ([]string, error) {
	children, err := self.db.ListChildren(self.config_obj,
		paths.NewClientPathManager("").ClientDirectory())
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(children))
	for _, child := range children {
		parts := child[len("/clients/"):]
		if ValidateClientId(parts) {
			result = append(result, parts)
		}
	}
	return result, nil
}

func (self *ClientInfoManager) GetClientSnapshot(
	client_id string) (*ClientInfo, error) {

	cached, err := self.cache.Get(client_id)
	if err == nil {
		info, ok := cached.(*ClientInfo)
		if ok {
			return info.Copy(), nil
		}
	}

	client_path_manager := paths.NewClientPathManager(client_id)
	info := &ClientInfo{}
	err = self.db.GetSubject(self.config_obj,
		client_path_manager.Path(), info)
	if err != nil {
		return nil, err
	}

	self.cache.Set(client_id, info)
	return info.Copy(), nil
}

func (self *ClientInfoManager) SetClientInfo(info *ClientInfo) error {
	if !ValidateClientId(info.ClientId) {
		return errors.Errorf("Invalid client id %v", info.ClientId)
	}

	client_path_manager := paths.NewClientPathManager(info.ClientId)
	err := self.db.SetSubject(self.config_obj,
		client_path_manager.Path(), info)
	if err != nil {
		return err
	}

	self.cache.Set(info.ClientId, info.Copy())
	return nil
}

// Record a heartbeat from the client. Flows use the ping age to
// decide when a client should be considered crashed.
func (self *ClientInfoManager) UpdatePing(client_id string) error {
	info, err := self.GetClientSnapshot(client_id)
	if err != nil {
		return err
	}

	info.Ping = utils.GetTime().Now().UnixNano()
	return self.SetClientInfo(info)
}

func (self *ClientInfoManager) IsLabelSet(
	client_id string, label string) bool {

	info, err := self.GetClientSnapshot(client_id)
	if err != nil {
		return false
	}
	return info.HasLabel(label)
}

func (self *ClientInfoManager) Close() {
	self.cache.Close()
}
