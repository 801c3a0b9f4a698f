package blobs

import (
	"os"
	"path/filepath"

	errors "github.com/pkg/errors"

	"github.com/openfleet/huntmaster/utils"
)

// Blobs on disk, fanned out by the first two hash characters. A
// racing writer of identical content simply loses the rename and
// that is fine - the content is the same.
type DirectoryBlobStore struct {
	root string
}

func (self *DirectoryBlobStore) pathOf(hash string) string {
	return filepath.Join(self.root, hash[:2], hash)
}

func (self *DirectoryBlobStore) Put(data []byte) (string, error) {
	hash := HashOf(data)
	filename := self.pathOf(hash)

	_, err := os.Stat(filename)
	if err == nil {
		blobDedupCounter.Inc()
		return hash, nil
	}

	err = os.MkdirAll(filepath.Dir(filename), 0700)
	if err != nil {
		return "", errors.WithStack(err)
	}

	// Write to a temp file then rename for atomicity.
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".blob")
	if err != nil {
		return "", errors.WithStack(err)
	}

	_, err = tmp.Write(data)
	tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return "", errors.WithStack(err)
	}

	err = os.Rename(tmp.Name(), filename)
	if err != nil {
		os.Remove(tmp.Name())
		return "", errors.WithStack(err)
	}

	blobWriteCounter.Inc()
	return hash, nil
}

func (self *DirectoryBlobStore) Get(hash string) ([]byte, error) {
	if len(hash) < 2 {
		return nil, utils.NotFoundError
	}

	data, err := os.ReadFile(self.pathOf(hash))
	if os.IsNotExist(err) {
		return nil, utils.NotFoundError
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}
