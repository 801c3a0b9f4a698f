package results

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
	"github.com/openfleet/huntmaster/paths"
)

var (
	indexedResultCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexed_result_records",
		Help: "Total number of result records written to the index.",
	})
)

// An append-only index of result records, queryable by client, by
// flow and by time range. Records are never updated in place.
type ResultIndex struct {
	config_obj *config.Config
	db         datastore.DataStore

	// Disambiguates records sharing a timestamp. The nonce covers
	// restarts: seq starts over but the nonce does not repeat.
	nonce string
	seq   uint64
}

func NewResultIndex(config_obj *config.Config,
	db datastore.DataStore) *ResultIndex {

	buf := make([]byte, 4)
	rand.Read(buf)

	return &ResultIndex{
		config_obj: config_obj,
		db:         db,
		nonce:      hex.EncodeToString(buf),
	}
}

// Append a record. The record is written under each lookup
// dimension; a failure part way leaves earlier writes in place,
// which is harmless for an append-only consumer.
func (self *ResultIndex) Put(record *ResultRecord) error {
	name := record.Key.recordName(self.nonce,
		atomic.AddUint64(&self.seq, 1))
	result_path_manager := paths.NewResultPathManager()

	err := self.db.SetSubject(self.config_obj,
		result_path_manager.FlowRecord(record.Key.FlowId, name), record)
	if err != nil {
		return err
	}

	err = self.db.SetSubject(self.config_obj,
		result_path_manager.ClientRecord(record.Key.ClientId, name), record)
	if err != nil {
		return err
	}

	err = self.db.SetSubject(self.config_obj,
		result_path_manager.TimeRecord(name), record)
	if err != nil {
		return err
	}

	indexedResultCounter.Inc()
	return nil
}

func (self *ResultIndex) loadRecords(urns []string) ([]*ResultRecord, error) {
	result := make([]*ResultRecord, 0, len(urns))
	for _, urn := range urns {
		record := &ResultRecord{}
		err := self.db.GetSubject(self.config_obj, urn, record)
		if err != nil {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func (self *ResultIndex) QueryByFlow(flow_id string) ([]*ResultRecord, error) {
	children, err := self.db.ListChildren(self.config_obj,
		paths.NewResultPathManager().ByFlow(flow_id))
	if err != nil {
		return nil, err
	}
	return self.loadRecords(children)
}

func (self *ResultIndex) QueryByClient(client_id string) ([]*ResultRecord, error) {
	children, err := self.db.ListChildren(self.config_obj,
		paths.NewResultPathManager().ByClient(client_id))
	if err != nil {
		return nil, err
	}
	return self.loadRecords(children)
}

// QueryByTimeRange returns records with start <= timestamp < end.
func (self *ResultIndex) QueryByTimeRange(
	start, end int64) ([]*ResultRecord, error) {

	children, err := self.db.ListChildren(self.config_obj,
		paths.NewResultPathManager().ByTime())
	if err != nil {
		return nil, err
	}

	// Record names are zero padded timestamps so the listing is
	// already time ordered.
	selected := []string{}
	for _, child := range children {
		parts := strings.Split(child, "/")
		name := parts[len(parts)-1]

		ts_part := strings.SplitN(name, ".", 2)[0]
		ts, err := strconv.ParseInt(ts_part, 10, 64)
		if err != nil {
			continue
		}

		if ts >= start && ts < end {
			selected = append(selected, child)
		}
	}

	return self.loadRecords(selected)
}
