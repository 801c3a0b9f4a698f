package datastore

/*
   A file based data store. Records are stored as JSON files under
   the configured root, one file per URN. This is suitable for single
   node deployments.
*/

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/json"
	"github.com/openfleet/huntmaster/utils"
)

type FileBaseDataStore struct {
	root string
}

// URN components may contain characters not acceptable to the
// filesystem, so each component is sanitized on the way through.
func (self *FileBaseDataStore) urnToPath(urn string) string {
	components := []string{self.root}
	for _, c := range strings.Split(urn, "/") {
		if c != "" {
			components = append(components, sanitize(c))
		}
	}
	return filepath.Join(components...)
}

func sanitize(component string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\\', ':', '*', '?', '"', '<', '>':
			return '_'
		}
		return r
	}, component)
}

func (self *FileBaseDataStore) GetSubject(
	config_obj *config.Config, urn string, record interface{}) error {

	defer Instrument("read", "FileBaseDataStore")()

	serialized, err := os.ReadFile(self.urnToPath(urn) + ".db")
	if os.IsNotExist(err) {
		return utils.NotFoundError
	}
	if err != nil {
		return errors.WithStack(err)
	}

	return json.Unmarshal(serialized, record)
}

func (self *FileBaseDataStore) SetSubject(
	config_obj *config.Config, urn string, record interface{}) error {

	defer Instrument("write", "FileBaseDataStore")()

	serialized, err := json.Marshal(record)
	if err != nil {
		return err
	}

	filename := self.urnToPath(urn) + ".db"
	err = os.MkdirAll(filepath.Dir(filename), 0700)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(os.WriteFile(filename, serialized, 0600))
}

func (self *FileBaseDataStore) DeleteSubject(
	config_obj *config.Config, urn string) error {

	defer Instrument("delete", "FileBaseDataStore")()

	err := os.Remove(self.urnToPath(urn) + ".db")
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

func (self *FileBaseDataStore) ListChildren(
	config_obj *config.Config, urn string) ([]string, error) {

	defer Instrument("list", "FileBaseDataStore")()

	children, err := os.ReadDir(self.urnToPath(urn))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// A urn may exist both as a record and as a directory of nested
	// records - report it once.
	base := strings.TrimSuffix(urn, "/")
	seen := make(map[string]bool)
	result := []string{}
	for _, child := range children {
		name := base + "/" + strings.TrimSuffix(child.Name(), ".db")
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}

	sort.Strings(result)
	return result, nil
}

func (self *FileBaseDataStore) SetIndex(
	config_obj *config.Config,
	index_urn string, entity string, keywords []string) error {

	for _, keyword := range keywords {
		err := self.SetSubject(config_obj,
			index_urn+"/"+entity+"/"+keyword, true)
		if err != nil {
			return err
		}
	}
	return nil
}

func (self *FileBaseDataStore) CheckIndex(
	config_obj *config.Config,
	index_urn string, entity string, keywords []string) error {

	for _, keyword := range keywords {
		var present bool
		err := self.GetSubject(config_obj,
			index_urn+"/"+entity+"/"+keyword, &present)
		if err != nil {
			return err
		}
	}
	return nil
}
