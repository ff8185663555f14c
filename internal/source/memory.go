package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemorySource serves a fixed file set. It backs tests and callers that
// already hold the content.
type MemorySource struct {
	mu    sync.RWMutex
	files map[string][]byte
	// FetchErr, when set, overrides FetchContent for the given paths.
	FetchErr map[string]error
}

func NewMemorySource(files map[string]string) *MemorySource {
	m := &MemorySource{files: make(map[string][]byte, len(files))}
	for p, c := range files {
		m.files[p] = []byte(c)
	}
	return m
}

// Put adds or replaces a file.
func (m *MemorySource) Put(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

func (m *MemorySource) ValidateRepository(repo string) error {
	if repo == "" {
		return fmt.Errorf("%w: empty repository", ErrInvalidRepository)
	}
	return nil
}

func (m *MemorySource) ListFiles(ctx context.Context, repo string, start Cursor, limit int) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	m.mu.RLock()
	paths := make([]string, 0, len(m.files))
	sizes := make(map[string]int64, len(m.files))
	for p, c := range m.files {
		paths = append(paths, p)
		sizes[p] = int64(len(c))
	}
	m.mu.RUnlock()
	sort.Strings(paths)

	files, ignored := Select(paths, sizes)
	l := Page(files, start, limit)
	l.Ignored = ignored
	return l, nil
}

func (m *MemorySource) FetchContent(ctx context.Context, repo, path string, maxBytes int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.FetchErr[path]; ok {
		return nil, err
	}
	m.mu.RLock()
	c, ok := m.files[path]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if maxBytes > 0 && int64(len(c)) > maxBytes {
		return nil, fmt.Errorf("%s (%d bytes): %w", path, len(c), ErrTooLarge)
	}
	return append([]byte(nil), c...), nil
}
