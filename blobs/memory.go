package blobs

import (
	"sync"

	"github.com/openfleet/huntmaster/utils"
)

var (
	memory_mu sync.Mutex
	g_memory  *MemoryBlobStore
)

type MemoryBlobStore struct {
	mu sync.Mutex

	data map[string][]byte

	// Physical writes actually performed - identical content only
	// ever counts once.
	write_count int
}

func getMemoryBlobStore() *MemoryBlobStore {
	memory_mu.Lock()
	defer memory_mu.Unlock()

	if g_memory == nil {
		g_memory = NewMemoryBlobStore()
	}
	return g_memory
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		data: make(map[string][]byte),
	}
}

func (self *MemoryBlobStore) Put(data []byte) (string, error) {
	hash := HashOf(data)

	self.mu.Lock()
	defer self.mu.Unlock()

	_, pres := self.data[hash]
	if pres {
		blobDedupCounter.Inc()
		return hash, nil
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	self.data[hash] = stored
	self.write_count++
	blobWriteCounter.Inc()

	return hash, nil
}

func (self *MemoryBlobStore) Get(hash string) ([]byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	data, pres := self.data[hash]
	if !pres {
		return nil, utils.NotFoundError
	}
	return data, nil
}

func (self *MemoryBlobStore) WriteCount() int {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.write_count
}

func (self *MemoryBlobStore) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.data = make(map[string][]byte)
	self.write_count = 0
}
