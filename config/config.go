package config

import (
	"time"

	"github.com/openfleet/huntmaster/constants"
)

// Frontend holds the knobs for the orchestration engine itself.
type FrontendConfig struct {
	// Seconds between hunt governor scheduling passes.
	HuntTickSec uint64 `json:"hunt_tick_sec,omitempty"`

	// A client silent for longer than this is considered crashed
	// for the purpose of its active flows.
	ClientPingTimeoutSec uint64 `json:"client_ping_timeout_sec,omitempty"`

	// Result batches are closed when either ceiling is reached.
	BatchMaxRows  uint64 `json:"batch_max_rows,omitempty"`
	BatchMaxBytes uint64 `json:"batch_max_bytes,omitempty"`

	// How many hunts may be scheduling concurrently.
	GovernorWorkers uint64 `json:"governor_workers,omitempty"`
}

type DatastoreConfig struct {
	// One of "Memory" or "FileBaseDataStore".
	Implementation string `json:"implementation,omitempty"`
	Location       string `json:"location,omitempty"`
}

type BlobStoreConfig struct {
	// One of "Memory" or "Directory".
	Implementation string `json:"implementation,omitempty"`
	Directory      string `json:"directory,omitempty"`
}

type LoggingConfig struct {
	OutputDirectory          string `json:"output_directory,omitempty"`
	SeparateLogsPerComponent bool   `json:"separate_logs_per_component,omitempty"`
	Debug                    bool   `json:"debug,omitempty"`
}

type Config struct {
	Frontend  *FrontendConfig  `json:"Frontend,omitempty"`
	Datastore *DatastoreConfig `json:"Datastore,omitempty"`
	BlobStore *BlobStoreConfig `json:"BlobStore,omitempty"`
	Logging   *LoggingConfig   `json:"Logging,omitempty"`
}

func (self *Config) HuntTick() time.Duration {
	if self.Frontend == nil || self.Frontend.HuntTickSec == 0 {
		return constants.DEFAULT_HUNT_TICK
	}
	return time.Duration(self.Frontend.HuntTickSec) * time.Second
}

func (self *Config) ClientPingTimeout() time.Duration {
	if self.Frontend == nil || self.Frontend.ClientPingTimeoutSec == 0 {
		return constants.DEFAULT_PING_TIMEOUT
	}
	return time.Duration(self.Frontend.ClientPingTimeoutSec) * time.Second
}

func GetDefaultConfig() *Config {
	return &Config{
		Frontend: &FrontendConfig{
			HuntTickSec:          10,
			ClientPingTimeoutSec: 600,
			BatchMaxRows:         1000,

			// Keep well under typical message size ceilings.
			BatchMaxBytes:   1024 * 1024,
			GovernorWorkers: 10,
		},
		Datastore: &DatastoreConfig{
			Implementation: "Memory",
		},
		BlobStore: &BlobStoreConfig{
			Implementation: "Memory",
		},
		Logging: &LoggingConfig{},
	}
}
