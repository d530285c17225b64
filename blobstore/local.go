package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	zfs "github.com/hupe1980/zlog/internal/fs"
)

// LocalStore implements BlobStore using the local file system.
type LocalStore struct {
	root string
	fs   zfs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// The directory is created if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	return newLocalStore(root, zfs.Default)
}

func newLocalStore(root string, fsys zfs.FileSystem) (*LocalStore, error) {
	if err := fsys.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &LocalStore{root: root, fs: fsys}, nil
}

// Root returns the directory the store writes to.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Get reads a blob.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fs.ReadFile(s.path(name))
}

// writeTemp writes data to a synced temporary file next to path.
func (s *LocalStore) writeTemp(path string, data []byte) (string, error) {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	f, err := s.fs.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// Put writes a blob atomically via rename.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.path(name)
	tmp, err := s.writeTemp(path, data)
	if err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// PutIfAbsent writes a blob unless it exists. The hard link either creates
// the name with its full content or fails because the name is taken.
func (s *LocalStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.path(name)
	tmp, err := s.writeTemp(path, data)
	if err != nil {
		return err
	}
	defer func() { _ = s.fs.Remove(tmp) }()

	if err := s.fs.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return err
	}
	return nil
}

// Delete removes a blob.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the blobs under root whose slash-separated name starts with
// prefix. Temporary files are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	if err := s.walk(ctx, "", prefix, &names); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) walk(ctx context.Context, dir, prefix string, names *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.fs.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := s.walk(ctx, name, prefix, names); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(name, prefix) {
			*names = append(*names, name)
		}
	}
	return nil
}

var _ ConditionalStore = (*LocalStore)(nil)
