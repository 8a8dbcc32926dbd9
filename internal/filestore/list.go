package filestore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileInfo describes one committed file of a task.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ListTaskFiles returns the visible regular files of a task, newest first
// by stamped name. A missing task directory yields an empty list.
func (s *Store) ListTaskFiles(ctx context.Context, taskID string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.TaskDir(taskID))
	if err != nil {
		if isNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, err
	}
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Mode().IsRegular() || IsHidden(entry.Name()) {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: entry.Size(), ModTime: entry.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Name > files[j].Name
	})
	return files, nil
}

// HasVisibleFile reports whether a task directory holds at least one
// non-hidden regular file.
func (s *Store) HasVisibleFile(ctx context.Context, taskID string) (bool, error) {
	files, err := s.ListTaskFiles(ctx, taskID)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// IsHidden reports whether name is a dotfile.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
