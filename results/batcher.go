package results

import (
	"bytes"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openfleet/huntmaster/blobs"
	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/json"
	"github.com/openfleet/huntmaster/utils"
)

var (
	flushedBatchCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flushed_result_batches",
		Help: "Total number of result batches flushed to the blob store.",
	})
)

// Receives the small summary records the batcher emits.
type ResultSink func(record *ResultRecord) error

// Accumulates rows for one (flow, payload type) stream into bounded
// batches. When a batch reaches the row or byte ceiling it is
// serialized as JSONL, compressed, written to the blob store under
// its content hash and replaced in the result stream by a small
// summary record. Batches are keyed by flush time, so their order
// does not track row discovery order: consumers must treat the
// batches of a flow as an unordered multiset.
type Batcher struct {
	mu sync.Mutex

	blob_store blobs.BlobStore
	sink       ResultSink

	client_id    string
	flow_id      string
	payload_type string

	max_rows  uint64
	max_bytes uint64

	rows       [][]byte
	total_size uint64
}

func NewBatcher(
	config_obj *config.Config,
	blob_store blobs.BlobStore,
	sink ResultSink,
	client_id, flow_id, payload_type string) *Batcher {

	return &Batcher{
		blob_store:   blob_store,
		sink:         sink,
		client_id:    client_id,
		flow_id:      flow_id,
		payload_type: payload_type,
		max_rows:     config_obj.Frontend.BatchMaxRows,
		max_bytes:    config_obj.Frontend.BatchMaxBytes,
	}
}

func (self *Batcher) Add(row *ordereddict.Dict) error {
	serialized, err := json.Marshal(row)
	if err != nil {
		return err
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	self.rows = append(self.rows, serialized)
	self.total_size += uint64(len(serialized)) + 1

	if (self.max_rows > 0 && uint64(len(self.rows)) >= self.max_rows) ||
		(self.max_bytes > 0 && self.total_size >= self.max_bytes) {
		return self.flush()
	}

	return nil
}

// Flush any partial batch, e.g. when the flow completes.
func (self *Batcher) Flush() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.flush()
}

func (self *Batcher) flush() error {
	if len(self.rows) == 0 {
		return nil
	}

	serialized := bytes.Join(self.rows, []byte("\n"))
	compressed := utils.Compress(serialized)

	// Identical content settles to the same hash - rewriting is a
	// no-op at the store.
	hash, err := self.blob_store.Put(compressed)
	if err != nil {
		return err
	}

	key, err := NewResultKey(self.client_id, self.flow_id,
		utils.GetTime().Now().UnixNano())
	if err != nil {
		return err
	}

	record := &ResultRecord{
		Key:         key,
		PayloadType: self.payload_type,
		Batch: &BatchSummary{
			BlobHash:   hash,
			EntryCount: uint64(len(self.rows)),
		},
	}

	self.rows = nil
	self.total_size = 0
	flushedBatchCounter.Inc()

	return self.sink(record)
}

// Read back the rows of a stored batch.
func UnpackBatch(blob_store blobs.BlobStore,
	summary *BatchSummary) ([]*ordereddict.Dict, error) {

	compressed, err := blob_store.Get(summary.BlobHash)
	if err != nil {
		return nil, err
	}

	serialized, err := utils.Uncompress(compressed)
	if err != nil {
		return nil, err
	}

	result := []*ordereddict.Dict{}
	for _, line := range bytes.Split(serialized, []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		row := ordereddict.NewDict()
		err := row.UnmarshalJSON(line)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, nil
}
