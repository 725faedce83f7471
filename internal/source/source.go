// Package source abstracts the byte source an OSM PBF file is read from.
//
// The block index only ever needs random access by (offset, size), so a
// source can be a local file, an in-memory buffer, or an object in an
// S3-compatible store read with ranged GETs.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by reads on a closed source.
var ErrClosed = errors.New("source: closed")

// Source is a read-only, randomly addressable PBF input.
type Source interface {
	// ReadAt reads len(p) bytes starting at off. A short read returns an error.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the total size in bytes.
	Size() int64

	// Name identifies the source in logs and status output.
	Name() string

	Close() error
}

// Local is implemented by sources backed by a file on the local file system.
// Side files are written next to such files by default.
type Local interface {
	Path() string
}

// File is a Source over a local file.
type File struct {
	path string
	f    *os.File
	size int64
}

// OpenFile opens path for random access.
func OpenFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", abs)
	}
	return &File{path: abs, f: f, size: st.Size()}, nil
}

func (s *File) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off+int64(len(p)) > s.size {
		return 0, io.ErrUnexpectedEOF
	}
	n, err := s.f.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	return n, err
}

func (s *File) Size() int64  { return s.size }
func (s *File) Name() string { return s.path }
func (s *File) Path() string { return s.path }
func (s *File) Close() error { return s.f.Close() }

// Memory is a Source over a byte slice. Used by tests and small inputs.
type Memory struct {
	name string

	mu     sync.RWMutex
	data   []byte
	closed bool
}

// NewMemory wraps data. The slice is not copied.
func NewMemory(name string, data []byte) *Memory {
	return &Memory{name: name, data: data}
}

func (m *Memory) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.ErrUnexpectedEOF
	}
	return copy(p, m.data[off:]), nil
}

func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
