package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/brixsport/go-auth-client/session"
)

var _ Repo = (*FileStore)(nil)

// FileStore persists the session as a single JSON record on disk, scoped to
// the device. Writes go to a temp file first and are renamed into place so a
// crash mid-write never leaves a partial record behind.
type FileStore struct {
	path string
	lock sync.Mutex
}

// NewFileStore creates a file-backed store at the given path. The parent
// directory is created on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Get() (*session.Session, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileStore.Get] read")
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "[FileStore.Get] unmarshal")
	}
	return &s, nil
}

func (fs *FileStore) Set(s *session.Session) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileStore.Set] marshal")
	}

	if dir := filepath.Dir(fs.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "[FileStore.Set] mkdir")
		}
	}

	tempFile := fs.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.Set] write temp file")
	}
	if err := os.Rename(tempFile, fs.path); err != nil {
		_ = os.Remove(tempFile)
		return errors.Wrap(err, "[FileStore.Set] rename")
	}
	return nil
}

func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] remove")
	}
	return nil
}
