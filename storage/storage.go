// Package storage keeps section caches on disk. Access is serialized with a
// coarse lock the way a single flash bus would be: one reader or writer at a
// time per store.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// File is an open cache file.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Store abstracts the cache directory.
type Store interface {
	// Create truncates or creates a cache entry for writing.
	Create(name string) (File, error)
	// Open opens an existing entry for reading.
	Open(name string) (File, error)
	// Remove deletes an entry. Removing a missing entry is not an error.
	Remove(name string) error
	// Exists reports whether an entry is present.
	Exists(name string) bool
}

// SectionName derives the cache entry name for one section of a document.
// The document identifier is slugified so that titles and paths in any
// script produce portable file names.
func SectionName(docID string, index int) string {
	s := slug.Make(docID)
	if s == "" {
		s = "doc"
	}
	return fmt.Sprintf("%s.%04d.sec", s, index)
}

// DirStore is a Store over one directory.
type DirStore struct {
	root string
	mu   sync.Mutex
	log  *zap.Logger
}

// NewDirStore creates the directory if needed.
func NewDirStore(root string, log *zap.Logger) (*DirStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &DirStore{root: root, log: log.Named("storage")}, nil
}

// Root reports the backing directory.
func (d *DirStore) Root() string { return d.root }

func (d *DirStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid cache entry name %q", name)
	}
	return filepath.Join(d.root, name), nil
}

func (d *DirStore) Create(name string) (File, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	f, err := os.Create(p)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("creating cache entry: %w", err)
	}
	d.log.Debug("cache entry created", zap.String("name", name))
	return &lockedFile{File: f, mu: &d.mu}, nil
}

func (d *DirStore) Open(name string) (File, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	f, err := os.Open(p)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	return &lockedFile{File: f, mu: &d.mu}, nil
}

func (d *DirStore) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	d.log.Debug("cache entry removed", zap.String("name", name))
	return nil
}

func (d *DirStore) Exists(name string) bool {
	p, err := d.path(name)
	if err != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = os.Stat(p)
	return err == nil
}

// lockedFile holds the store lock until closed.
type lockedFile struct {
	*os.File
	mu     *sync.Mutex
	closed bool
}

func (f *lockedFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	err := f.File.Close()
	f.mu.Unlock()
	return err
}
