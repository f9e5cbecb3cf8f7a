package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FSStore serves a directory tree as an object store. Object paths are
// slash-separated keys relative to the root; listing order is
// lexicographic, with opaque integer-offset page tokens.
type FSStore struct {
	root string
}

// NewFSStore opens a filesystem-backed store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("object store root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("object store root %s is not a directory", dir)
	}
	return &FSStore{root: dir}, nil
}

// Get reads one object's bytes.
func (s *FSStore) Get(ctx context.Context, objectPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local, err := s.localPath(objectPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectPath, err)
	}
	return data, nil
}

// List returns one lexicographic page of objects under prefix. The returned
// token is empty when the prefix is exhausted.
func (s *FSStore) List(ctx context.Context, prefix, pageToken string, maxResults int) ([]ObjectInfo, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if maxResults <= 0 {
		maxResults = 100
	}

	offset := 0
	if pageToken != "" {
		parsed, err := strconv.Atoi(pageToken)
		if err != nil || parsed < 0 {
			return nil, "", fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = parsed
	}

	all, err := s.collect(prefix)
	if err != nil {
		return nil, "", err
	}

	if offset >= len(all) {
		return nil, "", nil
	}

	end := offset + maxResults
	next := ""
	if end < len(all) {
		next = strconv.Itoa(end)
	} else {
		end = len(all)
	}
	return all[offset:end], next, nil
}

func (s *FSStore) collect(prefix string) ([]ObjectInfo, error) {
	var items []ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			// Skip unreadable entries rather than failing the whole page.
			return nil
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		items = append(items, ObjectInfo{Path: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

func (s *FSStore) localPath(objectPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectPath))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("object path %q escapes store root", objectPath)
	}
	return filepath.Join(s.root, clean), nil
}
