package datastore

/*
   An in-memory data store for tests and small deployments.
*/

import (
	"sort"
	"strings"
	"sync"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/json"
	"github.com/openfleet/huntmaster/utils"
)

type MemoryDataStore struct {
	mu sync.Mutex

	Subjects map[string][]byte

	// index_urn/entity -> set of keywords
	indexes map[string]map[string]bool
}

func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{
		Subjects: make(map[string][]byte),
		indexes:  make(map[string]map[string]bool),
	}
}

func (self *MemoryDataStore) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Subjects = make(map[string][]byte)
	self.indexes = make(map[string]map[string]bool)
}

func (self *MemoryDataStore) GetSubject(
	config_obj *config.Config, urn string, record interface{}) error {

	defer Instrument("read", "MemoryDataStore")()

	self.mu.Lock()
	serialized, pres := self.Subjects[urn]
	self.mu.Unlock()

	if !pres {
		return utils.NotFoundError
	}
	return json.Unmarshal(serialized, record)
}

func (self *MemoryDataStore) SetSubject(
	config_obj *config.Config, urn string, record interface{}) error {

	defer Instrument("write", "MemoryDataStore")()

	serialized, err := json.Marshal(record)
	if err != nil {
		return err
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	self.Subjects[urn] = serialized
	return nil
}

func (self *MemoryDataStore) DeleteSubject(
	config_obj *config.Config, urn string) error {

	defer Instrument("delete", "MemoryDataStore")()

	self.mu.Lock()
	defer self.mu.Unlock()

	delete(self.Subjects, urn)
	return nil
}

func (self *MemoryDataStore) ListChildren(
	config_obj *config.Config, urn string) ([]string, error) {

	defer Instrument("list", "MemoryDataStore")()

	self.mu.Lock()
	defer self.mu.Unlock()

	prefix := strings.TrimSuffix(urn, "/") + "/"
	seen := make(map[string]bool)
	result := []string{}

	for k := range self.Subjects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}

		// Only direct children.
		child := strings.SplitN(
			strings.TrimPrefix(k, prefix), "/", 2)[0]
		full := prefix + child
		if !seen[full] {
			seen[full] = true
			result = append(result, full)
		}
	}

	sort.Strings(result)
	return result, nil
}

func (self *MemoryDataStore) SetIndex(
	config_obj *config.Config,
	index_urn string, entity string, keywords []string) error {

	self.mu.Lock()
	defer self.mu.Unlock()

	key := index_urn + "/" + entity
	index, pres := self.indexes[key]
	if !pres {
		index = make(map[string]bool)
		self.indexes[key] = index
	}

	for _, keyword := range keywords {
		index[keyword] = true
	}
	return nil
}

func (self *MemoryDataStore) CheckIndex(
	config_obj *config.Config,
	index_urn string, entity string, keywords []string) error {

	self.mu.Lock()
	defer self.mu.Unlock()

	index, pres := self.indexes[index_urn+"/"+entity]
	if !pres {
		return utils.NotFoundError
	}

	for _, keyword := range keywords {
		if !index[keyword] {
			return utils.NotFoundError
		}
	}
	return nil
}
