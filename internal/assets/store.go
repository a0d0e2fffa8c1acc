// Package assets abstracts the key-addressed blob storage the pipeline uses
// for generated images. Existence of a key is the completion signal for its
// page; there is no separate database.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store is a flat key/value blob store. Keys are plain filenames such as
// "cover_front.png" or "page_07.png".
type Store interface {
	Exists(key string) bool
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	// Path returns the on-disk location for key, or "" for stores that
	// have no filesystem backing.
	Path(key string) string
	// Keys lists every stored key, sorted.
	Keys() ([]string, error)
}

// Dir is a directory-backed Store. Writes are atomic (temp file + rename)
// so a concurrent reader never sees a partial image.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Exists(key string) bool {
	info, err := os.Stat(filepath.Join(d.root, key))
	return err == nil && !info.IsDir()
}

func (d *Dir) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", key, err)
	}
	return data, nil
}

func (d *Dir) Write(key string, data []byte) error {
	if err := os.MkdirAll(d.root, 0755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}

	path := filepath.Join(d.root, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write asset %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize asset %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Path(key string) string {
	return filepath.Join(d.root, key)
}

func (d *Dir) Keys() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list asset directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// Mem is an in-memory Store for tests.
type Mem struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMem() *Mem {
	return &Mem{blobs: make(map[string][]byte)}
}

func (m *Mem) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok
}

func (m *Mem) Read(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("asset %s not found", key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Mem) Write(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[key] = stored
	return nil
}

func (m *Mem) Path(string) string { return "" }

func (m *Mem) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes a key from a Mem store. Only tests need deletion.
func (m *Mem) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
}
