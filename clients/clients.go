// Client attribute snapshots.
//
// Clients are owned and mutated externally (enrollment,
// interrogation). This package only serves read-only snapshots of
// their descriptive attributes for rule evaluation, and tracks the
// last time each client was heard from.
package clients

import (
	"regexp"
	"strings"

	"github.com/Velocidex/ordereddict"
)

var (
	// Client IDs always start with "C." or refer to the "server".
	client_id_regex = regexp.MustCompile(`^(C\.[a-z0-9]+|server)$`)
)

func ValidateClientId(client_id string) bool {
	return client_id_regex.MatchString(client_id)
}

// A point in time snapshot of one client's descriptive attributes.
type ClientInfo struct {
	ClientId string   `json:"client_id"`
	Hostname string   `json:"hostname,omitempty"`
	OS       string   `json:"os,omitempty"` // windows, linux or darwin
	Labels   []string `json:"labels,omitempty"`

	// Last time we heard from the client in nanoseconds.
	Ping int64 `json:"ping,omitempty"`

	// Additional queryable fields (agent version, memory size etc).
	Fields *ordereddict.Dict `json:"fields,omitempty"`
}

// Field access for regex rules. Well known attributes are addressed
// by name, anything else is looked up in the extra fields.
func (self *ClientInfo) GetFieldString(field string) (string, bool) {
	switch strings.ToLower(field) {
	case "client_id":
		return self.ClientId, true
	case "hostname":
		return self.Hostname, true
	case "os", "system":
		return self.OS, true
	case "labels":
		return strings.Join(self.Labels, ","), true
	}

	if self.Fields != nil {
		value, pres := self.Fields.GetString(field)
		if pres {
			return value, true
		}
	}

	return "", false
}

// Field access for integer rules.
func (self *ClientInfo) GetFieldInt64(field string) (int64, bool) {
	if self.Fields == nil {
		return 0, false
	}
	return self.Fields.GetInt64(field)
}

func (self *ClientInfo) HasLabel(label string) bool {
	for _, l := range self.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

func (self *ClientInfo) Copy() *ClientInfo {
	result := *self
	result.Labels = append([]string{}, self.Labels...)
	return &result
}
