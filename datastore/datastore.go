// An interface into persistent data storage.
package datastore

import (
	"sync"

	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/config"
)

var (
	mu sync.Mutex

	g_memory *MemoryDataStore
)

type DataStore interface {
	// Reads a stored record from the datastore. If there is no
	// stored record at this URN, the function returns
	// utils.NotFoundError.
	GetSubject(config_obj *config.Config,
		urn string, record interface{}) error

	SetSubject(config_obj *config.Config,
		urn string, record interface{}) error

	DeleteSubject(config_obj *config.Config, urn string) error

	// Lists the direct children of a URN in lexical order.
	ListChildren(config_obj *config.Config,
		urn string) ([]string, error)

	// Update the posting list index. Searching for any of the
	// keywords will return the entity urn.
	SetIndex(config_obj *config.Config,
		index_urn string, entity string, keywords []string) error

	// Returns nil if all keywords are present in the index for
	// this entity.
	CheckIndex(config_obj *config.Config,
		index_urn string, entity string, keywords []string) error
}

func GetDB(config_obj *config.Config) (DataStore, error) {
	if config_obj.Datastore == nil {
		return nil, errors.New("Datastore not configured")
	}

	switch config_obj.Datastore.Implementation {
	case "Memory":
		mu.Lock()
		defer mu.Unlock()

		if g_memory == nil {
			g_memory = NewMemoryDataStore()
		}
		return g_memory, nil

	case "FileBaseDataStore":
		if config_obj.Datastore.Location == "" {
			return nil, errors.New(
				"FileBaseDataStore requires a location")
		}
		return &FileBaseDataStore{
			root: config_obj.Datastore.Location,
		}, nil

	default:
		return nil, errors.Errorf("Unsupported datastore %v",
			config_obj.Datastore.Implementation)
	}
}
