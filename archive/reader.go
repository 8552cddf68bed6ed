// Package archive gives safe random access to zip containers. Entries are
// addressed by their normalized archive path; entries that could escape an
// extraction directory are rejected when the container opens.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Reader is an open zip container with an entry index.
type Reader struct {
	rc    *zip.ReadCloser
	files map[string]*zip.File
}

// OpenReader opens a zip container and indexes its file entries. Any entry
// with a path traversal component ("..") or an absolute path fails the open,
// preventing Zip Slip attacks.
func OpenReader(name string) (*Reader, error) {
	rc, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("opening container %q: %w", name, err)
	}
	files := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		entry := f.FileHeader.Name
		if !isSafePath(entry) {
			rc.Close()
			return nil, fmt.Errorf("container entry %q: unsafe path (absolute or contains path traversal)", entry)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		files[path.Clean(entry)] = f
	}
	return &Reader{rc: rc, files: files}, nil
}

// Close releases the underlying archive.
func (r *Reader) Close() error { return r.rc.Close() }

// Exists reports whether the container holds the named entry.
func (r *Reader) Exists(name string) bool {
	_, ok := r.files[path.Clean(name)]
	return ok
}

// Open returns a reader over the named entry.
func (r *Reader) Open(name string) (io.ReadCloser, error) {
	f, ok := r.files[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("container entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening container entry %q: %w", name, err)
	}
	return rc, nil
}

// ReadAll reads the named entry in full.
func (r *Reader) ReadAll(name string) ([]byte, error) {
	rc, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading container entry %q: %w", name, err)
	}
	return data, nil
}

// Size reports the uncompressed size of the named entry, or 0 when absent.
func (r *Reader) Size(name string) uint64 {
	f, ok := r.files[path.Clean(name)]
	if !ok {
		return 0
	}
	return f.UncompressedSize64
}

// Names lists all file entries in sorted order.
func (r *Reader) Names() []string {
	out := make([]string, 0, len(r.files))
	for name := range r.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
