// Fleet wide campaigns of flows.
package hunts

import (
	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/flows"
	"github.com/openfleet/huntmaster/foreman"
	"github.com/openfleet/huntmaster/utils"
)

type HuntState string

const (
	HUNT_PENDING   HuntState = "PENDING"
	HUNT_RUNNING   HuntState = "RUNNING"
	HUNT_STOPPED   HuntState = "STOPPED"
	HUNT_COMPLETED HuntState = "COMPLETED"
)

func (self HuntState) IsTerminal() bool {
	return self == HUNT_STOPPED || self == HUNT_COMPLETED
}

// Immutable per hunt throttling and stop thresholds.
type SafetyLimits struct {
	// Max new clients started per rolling 60 second window. 0
	// means unthrottled.
	ClientRate uint64 `json:"client_rate,omitempty"`

	// Hard cap on total clients. 0 means unbounded.
	ClientLimit uint64 `json:"client_limit,omitempty"`

	// Absolute deadline (nanoseconds) after which no new
	// scheduling occurs and the hunt stops.
	ExpiryTime int64 `json:"expiry_time,omitempty"`

	// Client crashes tolerated before the hunt stops.
	CrashLimit uint64 `json:"crash_limit,omitempty"`

	// Fleet average soft thresholds, checked on the governor tick.
	AvgResultsPerClientLimit      float64 `json:"avg_results_per_client_limit,omitempty"`
	AvgCpuSecondsPerClientLimit   float64 `json:"avg_cpu_seconds_per_client_limit,omitempty"`
	AvgNetworkBytesPerClientLimit float64 `json:"avg_network_bytes_per_client_limit,omitempty"`

	// Hard caps enforced inside each flow, independent of the
	// fleet averages above.
	PerClientCpuLimit          float64 `json:"per_client_cpu_limit,omitempty"`
	PerClientNetworkBytesLimit uint64  `json:"per_client_network_bytes_limit,omitempty"`
}

func (self *SafetyLimits) Validate() error {
	if self.ExpiryTime != 0 &&
		self.ExpiryTime <= utils.GetTime().Now().UnixNano() {
		return errors.New("Hunt expiry time is in the past")
	}
	return nil
}

// Aggregates recomputed from flow snapshots on each governor tick.
// Reads are eventually consistent: a value may lag the flows by up
// to one tick, which is the deliberate trade for not serializing
// against every flow.
type HuntStats struct {
	TotalClientsScheduled uint64 `json:"total_clients_scheduled"`
	TotalCrashes          uint64 `json:"total_crashes"`
	TotalCompleted        uint64 `json:"total_completed"`
	TotalErrored          uint64 `json:"total_errored"`

	AvgCpuSecondsPerClient   float64 `json:"avg_cpu_seconds_per_client"`
	AvgNetworkBytesPerClient float64 `json:"avg_network_bytes_per_client"`
	AvgResultsPerClient      float64 `json:"avg_results_per_client"`

	// When the snapshot was computed.
	LastUpdateTime int64 `json:"last_update_time"`
}

type Hunt struct {
	HuntId string `json:"hunt_id"`

	RuleSet *foreman.RuleSet `json:"rule_set,omitempty"`
	Limits  SafetyLimits     `json:"limits"`
	Action  flows.ActionSpec `json:"action"`

	State      HuntState `json:"state"`
	StopReason string    `json:"stop_reason,omitempty"`

	CreateTime int64 `json:"create_time"`
	StartTime  int64 `json:"start_time,omitempty"`
	StopTime   int64 `json:"stop_time,omitempty"`

	Stats HuntStats `json:"stats"`

	// Flows created by this hunt.
	FlowIds []string `json:"flow_ids,omitempty"`
}

func (self *Hunt) Copy() *Hunt {
	result := *self
	result.FlowIds = append([]string{}, self.FlowIds...)
	if self.RuleSet != nil {
		rule_set := *self.RuleSet
		result.RuleSet = &rule_set
	}
	return &result
}
