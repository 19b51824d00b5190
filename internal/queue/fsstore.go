package queue

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore is a MessageStore over a spool directory: one file per message
// id, raw RFC 822 bytes, no index. os.Open already gives the lazy,
// non-restartable byte stream the fetch endpoint drains.
type FSStore struct {
	dir string
}

// NewFSStore creates the spool directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Exists(_ context.Context, id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FSStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoMessage
		}
		return nil, err
	}
	return f, nil
}

// Put stores a message body; used by enqueue-side tooling and tests.
func (s *FSStore) Put(_ context.Context, id string, r io.Reader) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// path maps an id to its spool file. Ids are opaque queue identifiers,
// never paths; anything that could escape the spool dir is rejected.
func (s *FSStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid message id %q", id)
	}
	return filepath.Join(s.dir, id+".eml"), nil
}
