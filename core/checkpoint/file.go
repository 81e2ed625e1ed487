package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
)

// Make sure to implement the Store interface
var _ Store = (*FileStore)(nil)

// FileStore keeps the checkpoint as a plain-text integer in a single file.
type FileStore struct {
	path string

	mu    sync.Mutex
	saved bool
	last  uint64
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Name() string {
	return "file"
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (uint64, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "can't read checkpoint file %q", s.path)
	}

	text := strings.TrimSpace(string(data))
	position, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(errs.InvalidArgument, "corrupted checkpoint file %q: %q", s.path, text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved || position > s.last {
		s.saved, s.last = true, position
	}
	return position, true, nil
}

// Save writes position to a temporary file in the same directory and renames it over
// the checkpoint file. Saving a position lower than a previously saved one is rejected.
func (s *FileStore) Save(_ context.Context, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saved && position < s.last {
		return errors.Wrapf(ErrBehind, "last: %d, given: %d", s.last, position)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "can't create checkpoint directory %q", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "can't create temporary checkpoint file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.WriteString(strconv.FormatUint(position, 10)); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "can't write temporary checkpoint file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "can't sync temporary checkpoint file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "can't close temporary checkpoint file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrapf(err, "can't replace checkpoint file %q", s.path)
	}

	s.saved, s.last = true, position
	return nil
}
