package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalSource reads a checked-out repository from disk. The repository
// identifier is the directory path.
type LocalSource struct{}

func NewLocalSource() *LocalSource { return &LocalSource{} }

func (LocalSource) ValidateRepository(repo string) error {
	info, err := os.Stat(repo)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRepository, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRepository, repo)
	}
	return nil
}

func (s LocalSource) ListFiles(ctx context.Context, repo string, start Cursor, limit int) (Listing, error) {
	if err := s.ValidateRepository(repo); err != nil {
		return Listing{}, err
	}

	var (
		paths []string
		sizes = make(map[string]int64)
	)
	err := filepath.WalkDir(repo, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(repo, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && (d.Name() == ".git" || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		paths = append(paths, rel)
		sizes[rel] = info.Size()
		return nil
	})
	if err != nil {
		return Listing{}, fmt.Errorf("failed to walk %s: %w", repo, err)
	}

	files, ignored := Select(paths, sizes)
	l := Page(files, start, limit)
	l.Ignored = ignored
	return l, nil
}

func (LocalSource) FetchContent(ctx context.Context, repo, path string, maxBytes int64) ([]byte, error) {
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	f, err := os.Open(filepath.Join(repo, filepath.FromSlash(path)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, fmt.Errorf("%s (%d bytes): %w", path, info.Size(), ErrTooLarge)
	}

	r := io.Reader(f)
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	return data, nil
}
