package results

import (
	"fmt"
	"strconv"
	"strings"

	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/constants"
)

// The identity of one result record. Timestamp is in nanoseconds.
type ResultKey struct {
	ClientId  string `json:"client_id"`
	FlowId    string `json:"flow_id"`
	Timestamp int64  `json:"timestamp"`
}

// Component values containing the separator would make the string
// encoding ambiguous, so they are rejected here rather than
// truncated or escaped later.
func NewResultKey(client_id, flow_id string, timestamp int64) (ResultKey, error) {
	for _, component := range []string{client_id, flow_id} {
		if strings.Contains(component, constants.RESULT_KEY_SEPARATOR) {
			return ResultKey{}, errors.Errorf(
				"Result key component %q may not contain the reserved separator %q",
				component, constants.RESULT_KEY_SEPARATOR)
		}
	}

	return ResultKey{
		ClientId:  client_id,
		FlowId:    flow_id,
		Timestamp: timestamp,
	}, nil
}

// The canonical string form: client|flow|timestamp.
func (self ResultKey) Encode() string {
	return strings.Join([]string{
		self.ClientId,
		self.FlowId,
		strconv.FormatInt(self.Timestamp, 10),
	}, constants.RESULT_KEY_SEPARATOR)
}

func (self ResultKey) String() string {
	return self.Encode()
}

func DecodeResultKey(encoded string) (ResultKey, error) {
	parts := strings.Split(encoded, constants.RESULT_KEY_SEPARATOR)
	if len(parts) != 3 {
		return ResultKey{}, errors.Errorf(
			"Invalid result key %q: expected 3 %q separated components, got %d",
			encoded, constants.RESULT_KEY_SEPARATOR, len(parts))
	}

	timestamp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ResultKey{}, errors.Errorf(
			"Invalid result key %q: timestamp %q is not an integer",
			encoded, parts[2])
	}

	return NewResultKey(parts[0], parts[1], timestamp)
}

// A stable datastore-friendly name sorting in time order. The nonce
// distinguishes writers, so a sequence counter restarting from zero
// can not collide with names an earlier process already wrote.
func (self ResultKey) recordName(nonce string, seq uint64) string {
	return fmt.Sprintf("%020d.%06d.%s", self.Timestamp, seq, nonce)
}
