package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for p, c := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(c), 0o644))
	}
	return root
}

func TestLocalSource(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":                    "module x\n",
		"main.go":                   "package main\n",
		"internal/db/db.go":         "package db\n",
		"node_modules/a/index.js":   "x",
		".git/config":               "[core]",
		"docs/README.md":            "# docs",
		"internal/db/huge_data.sql": strings.Repeat("x", 64),
	})
	s := NewLocalSource()
	ctx := context.Background()

	require.NoError(t, s.ValidateRepository(root))
	assert.ErrorIs(t, s.ValidateRepository(filepath.Join(root, "go.mod")), ErrInvalidRepository)
	assert.ErrorIs(t, s.ValidateRepository(filepath.Join(root, "missing")), ErrInvalidRepository)

	l, err := s.ListFiles(ctx, root, 0, 10)
	require.NoError(t, err)
	var paths []string
	for _, f := range l.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"go.mod", "main.go", "internal/db/db.go", "internal/db/huge_data.sql"}, paths)
	assert.Nil(t, l.Next)

	data, err := s.FetchContent(ctx, root, "main.go", 1024)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))

	_, err = s.FetchContent(ctx, root, "internal/db/huge_data.sql", 32)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = s.FetchContent(ctx, root, "nope.go", 32)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FetchContent(ctx, root, "../escape.go", 32)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySource(t *testing.T) {
	m := NewMemorySource(map[string]string{
		"a.py":             "print(1)",
		"requirements.txt": "flask==2.0.0",
		"logo.png":         "",
	})
	ctx := context.Background()

	l, err := m.ListFiles(ctx, "mem://repo", 0, 1)
	require.NoError(t, err)
	require.Len(t, l.Files, 1)
	assert.Equal(t, "requirements.txt", l.Files[0].Path)
	assert.Equal(t, 1, l.Remaining)
	assert.Equal(t, 1, l.Ignored)

	_, err = m.FetchContent(ctx, "mem://repo", "a.py", 4)
	assert.ErrorIs(t, err, ErrTooLarge)

	m.Put("b.py", []byte("x"))
	l, err = m.ListFiles(ctx, "mem://repo", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Total)

	assert.ErrorIs(t, m.ValidateRepository(""), ErrInvalidRepository)
}
