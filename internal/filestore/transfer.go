package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/afero"
)

// Staged is a file written into tmp and not yet visible under tasks/.
type Staged struct {
	Name string
	Path string
	Size int64
}

// Committed is a staged file moved into its task directory.
type Committed struct {
	TaskID string
	Name   string
	Path   string
	Size   int64
}

// Stage writes r into tmp under a stamped name derived from name. Content
// longer than limit (when limit > 0) is rejected with ErrTooLarge and the
// partial file is removed.
func (s *Store) Stage(ctx context.Context, name string, r io.Reader, limit int64) (Staged, error) {
	var zero Staged
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}

	staged := strconv.FormatInt(s.nextStamp(), 10) + "-" + name
	tmpPath := filepath.Join(s.TmpPath(), staged)
	if err := s.fs.MkdirAll(s.TmpPath(), 0o755); err != nil {
		return zero, err
	}
	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return zero, err
	}
	cleanup := func() {
		_ = f.Close()
		_ = s.fs.Remove(tmpPath)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		cleanup()
		return zero, err
	}
	if limit > 0 && n > limit {
		cleanup()
		return zero, ErrTooLarge
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return zero, err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return zero, err
	}
	return Staged{Name: staged, Path: tmpPath, Size: n}, nil
}

// Discard removes a staged file. Missing files are ignored.
func (s *Store) Discard(staged Staged) error {
	if err := s.fs.Remove(staged.Path); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// Commit moves a staged file into tasks/{taskID}/, creating the directory
// as needed.
func (s *Store) Commit(ctx context.Context, staged Staged, taskID string) (Committed, error) {
	var zero Committed
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dir := s.TaskDir(taskID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return zero, err
	}
	dst := filepath.Join(dir, staged.Name)
	if err := MoveFile(s.fs, staged.Path, dst); err != nil {
		return zero, err
	}
	return Committed{TaskID: taskID, Name: staged.Name, Path: dst, Size: staged.Size}, nil
}

// Rollback moves a committed file back into tmp and returns its new path.
func (s *Store) Rollback(committed Committed) (string, error) {
	dst := filepath.Join(s.TmpPath(), committed.Name)
	if err := MoveFile(s.fs, committed.Path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// MoveFile renames src to dst, refusing to overwrite an existing dst. When
// the rename crosses devices the file is copied, the copy's size verified,
// and only then is src removed.
func MoveFile(fs afero.Fs, src, dst string) error {
	exists, err := afero.Exists(fs, dst)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("move %s: %w", dst, ErrExists)
	}
	err = fs.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	return copyThenRemove(fs, src, dst)
}

func copyThenRemove(fs afero.Fs, src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	abort := func(cause error) error {
		_ = out.Close()
		_ = fs.Remove(dst)
		return cause
	}
	n, err := io.Copy(out, in)
	if err != nil {
		return abort(err)
	}
	if err := out.Sync(); err != nil {
		return abort(err)
	}
	if err := out.Close(); err != nil {
		_ = fs.Remove(dst)
		return err
	}

	copied, err := fs.Stat(dst)
	if err != nil {
		_ = fs.Remove(dst)
		return err
	}
	if n != info.Size() || copied.Size() != info.Size() {
		_ = fs.Remove(dst)
		return fmt.Errorf("copy %s: size mismatch (%d != %d)", src, copied.Size(), info.Size())
	}
	return fs.Remove(src)
}
