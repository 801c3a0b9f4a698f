package results

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openfleet/huntmaster/config"
	"github.com/openfleet/huntmaster/datastore"
)

func testIndex(t *testing.T) *ResultIndex {
	config_obj := config.GetDefaultConfig()
	db := datastore.NewMemoryDataStore()
	return NewResultIndex(config_obj, db)
}

func mustKey(t *testing.T, client_id, flow_id string, ts int64) ResultKey {
	key, err := NewResultKey(client_id, flow_id, ts)
	assert.NoError(t, err)
	return key
}

func TestResultIndexQueries(t *testing.T) {
	index := testIndex(t)

	records := []*ResultRecord{
		{Key: mustKey(t, "C.1", "F.1", 100), PayloadType: "generic"},
		{Key: mustKey(t, "C.1", "F.2", 200), PayloadType: "generic"},
		{Key: mustKey(t, "C.2", "F.3", 300), PayloadType: "generic"},
	}
	for _, record := range records {
		assert.NoError(t, index.Put(record))
	}

	by_flow, err := index.QueryByFlow("F.1")
	assert.NoError(t, err)
	assert.Len(t, by_flow, 1)
	assert.Equal(t, "C.1", by_flow[0].Key.ClientId)

	by_client, err := index.QueryByClient("C.1")
	assert.NoError(t, err)
	assert.Len(t, by_client, 2)

	// start inclusive, end exclusive.
	by_time, err := index.QueryByTimeRange(100, 300)
	assert.NoError(t, err)
	assert.Len(t, by_time, 2)

	by_time, err = index.QueryByTimeRange(0, 1000)
	assert.NoError(t, err)
	assert.Len(t, by_time, 3)

	by_time, err = index.QueryByTimeRange(301, 1000)
	assert.NoError(t, err)
	assert.Len(t, by_time, 0)
}

func TestResultIndexIsAppendOnly(t *testing.T) {
	index := testIndex(t)

	// Records sharing a key never overwrite each other.
	key := mustKey(t, "C.1", "F.1", 100)
	assert.NoError(t, index.Put(&ResultRecord{Key: key, PayloadType: "a"}))
	assert.NoError(t, index.Put(&ResultRecord{Key: key, PayloadType: "b"}))

	by_flow, err := index.QueryByFlow("F.1")
	assert.NoError(t, err)
	assert.Len(t, by_flow, 2)
}

func TestResultIndexSurvivesWriterRestart(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	db := datastore.NewMemoryDataStore()

	// Two writer incarnations over the same datastore. Their
	// sequence counters both start from zero.
	key := mustKey(t, "C.1", "F.1", 100)

	first := NewResultIndex(config_obj, db)
	assert.NoError(t, first.Put(&ResultRecord{Key: key, PayloadType: "a"}))

	restarted := NewResultIndex(config_obj, db)
	assert.NoError(t, restarted.Put(&ResultRecord{Key: key, PayloadType: "b"}))

	// The restarted writer appended, it did not overwrite.
	by_flow, err := restarted.QueryByFlow("F.1")
	assert.NoError(t, err)
	assert.Len(t, by_flow, 2)
}
