// A content addressed blob store.
//
// Blobs are immutable byte sequences named by the sha256 of their
// content. Writes are idempotent: storing the same content twice
// settles to a single stored object and is never an error, so
// concurrent or retried writers need no coordination.
package blobs

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/config"
)

var (
	blobWriteCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blob_store_writes",
		Help: "Total number of physical blob writes.",
	})

	blobDedupCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blob_store_dedup_hits",
		Help: "Total number of blob writes elided because the content already existed.",
	})
)

type BlobStore interface {
	// Store the blob and return its content hash. Idempotent.
	Put(data []byte) (string, error)

	// Retrieve a blob by hash. Returns utils.NotFoundError for
	// unknown hashes.
	Get(hash string) ([]byte, error)
}

func HashOf(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func GetBlobStore(config_obj *config.Config) (BlobStore, error) {
	if config_obj.BlobStore == nil {
		return nil, errors.New("Blob store not configured")
	}

	switch config_obj.BlobStore.Implementation {
	case "Memory":
		return getMemoryBlobStore(), nil

	case "Directory":
		if config_obj.BlobStore.Directory == "" {
			return nil, errors.New(
				"Directory blob store requires a directory")
		}
		return &DirectoryBlobStore{
			root: config_obj.BlobStore.Directory,
		}, nil

	default:
		return nil, errors.Errorf("Unsupported blob store %v",
			config_obj.BlobStore.Implementation)
	}
}
