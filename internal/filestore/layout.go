package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

const (
	TasksDir = "tasks"
	TmpDir   = "tmp"
	TrashDir = ".trash"

	permCheckPrefix = ".perm_check_"
)

var (
	// ErrExists is returned when a move target is already occupied.
	ErrExists = errors.New("destination already exists")
	// ErrTooLarge is returned by Stage when content exceeds the limit.
	ErrTooLarge = errors.New("content exceeds size limit")
)

// Store manages the upload storage root:
//
//	{root}/tasks/{taskId}/{files}
//	{root}/tmp/{staged}
//	{root}/.trash/{moved}
//
// Files are only ever created in tmp, then moved or deleted.
type Store struct {
	fs        afero.Fs
	root      string
	now       func() time.Time
	lastStamp atomic.Int64
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for staging stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens (and creates when missing) a storage root on fs.
func New(fs afero.Fs, root string, opts ...Option) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("upload root is required")
	}
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	s := &Store{fs: fs, root: filepath.Clean(root), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{s.root, s.TasksPath(), s.TmpPath(), s.TrashPath()} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// NewOS opens a storage root on the host filesystem.
func NewOS(root string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(strings.TrimSpace(root))
	if err != nil {
		return nil, err
	}
	return New(afero.NewOsFs(), abs, opts...)
}

func (s *Store) Fs() afero.Fs { return s.fs }
func (s *Store) Root() string { return s.root }
func (s *Store) TasksPath() string { return filepath.Join(s.root, TasksDir) }
func (s *Store) TmpPath() string { return filepath.Join(s.root, TmpDir) }
func (s *Store) TrashPath() string { return filepath.Join(s.root, TrashDir) }
func (s *Store) TaskDir(id string) string {
	return filepath.Join(s.root, TasksDir, id)
}

// ProbeWritable verifies the root accepts new files by writing and removing
// a scratch file.
func (s *Store) ProbeWritable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := afero.TempFile(s.fs, s.root, permCheckPrefix)
	if err != nil {
		return fmt.Errorf("upload root not writable: %w", err)
	}
	name := f.Name()
	_, werr := f.Write([]byte("ok"))
	cerr := f.Close()
	rerr := s.fs.Remove(name)
	if err := errors.Join(werr, cerr, rerr); err != nil {
		return fmt.Errorf("upload root not writable: %w", err)
	}
	return nil
}

// nextStamp returns a millisecond stamp strictly greater than any previous
// stamp handed out by this store.
func (s *Store) nextStamp() int64 {
	now := s.now().UnixMilli()
	for {
		last := s.lastStamp.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if s.lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
