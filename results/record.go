package results

// Emitted when a batch of rows is flushed to the blob store.
// EntryCount covers this batch only - cumulative totals are a
// downstream aggregation, never computed here.
type BatchSummary struct {
	BlobHash   string `json:"blob_hash"`
	EntryCount uint64 `json:"entry_count"`
}

// One emitted result. Small payloads travel inline; unbounded
// outputs are batched through the blob pipeline and only a
// BatchSummary crosses back into the result stream.
type ResultRecord struct {
	Key ResultKey `json:"key"`

	// Routes the payload to a decoder. Unknown tags are preserved
	// opaquely.
	PayloadType string `json:"payload_type"`

	Payload []byte        `json:"payload,omitempty"`
	Batch   *BatchSummary `json:"batch,omitempty"`
}
