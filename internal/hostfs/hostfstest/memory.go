// Package hostfstest provides an in-memory hostfs.FS.
package hostfstest

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"sync"
)

// Memory is an in-memory file system keyed by absolute path.
type Memory struct {
	mu     sync.Mutex
	files  map[string][]byte
	modes  map[string]fs.FileMode
	dirs   map[string]bool
	writes map[string]int

	// ReadErr, when set, is returned by ReadFile for the keyed path.
	ReadErr map[string]error
}

// New creates a Memory pre-populated with files.
func New(files map[string]string) *Memory {
	m := &Memory{
		files:   make(map[string][]byte),
		modes:   make(map[string]fs.FileMode),
		dirs:    make(map[string]bool),
		writes:  make(map[string]int),
		ReadErr: make(map[string]error),
	}
	for p, content := range files {
		m.files[p] = []byte(content)
	}
	return m
}

// ReadFile implements hostfs.FS.
func (m *Memory) ReadFile(_ context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ReadErr[p]; err != nil {
		return nil, err
	}
	data, ok := m.files[p]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

// WriteFile implements hostfs.FS.
func (m *Memory) WriteFile(_ context.Context, p string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = append([]byte(nil), data...)
	m.modes[p] = perm
	m.writes[p]++
	return nil
}

// Exists implements hostfs.FS.
func (m *Memory) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, isFile := m.files[p]
	return isFile || m.dirs[p], nil
}

// MkdirAll implements hostfs.FS.
func (m *Memory) MkdirAll(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := path.Clean(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		m.dirs[dir] = true
	}
	return nil
}

// Content returns the file at p and whether it exists.
func (m *Memory) Content(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	return string(data), ok
}

// Mode returns the permission bits of the last write to p.
func (m *Memory) Mode(p string) fs.FileMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modes[p]
}

// Writes returns how many times p was written.
func (m *Memory) Writes(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[p]
}

// Dirs returns the created directories, sorted.
func (m *Memory) Dirs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.dirs))
	for d := range m.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Remove deletes p.
func (m *Memory) Remove(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
}
