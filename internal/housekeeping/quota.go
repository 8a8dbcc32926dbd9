package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"planner/internal/filestore"
)

const maxTrashNameAttempts = 1000

// EvictionHook is told about every file moved out of a task directory so
// its metadata record can be dropped.
type EvictionHook interface {
	Forget(ctx context.Context, taskID, fileName string) error
}

// QuotaEnforcer soft-deletes the oldest task files while the storage root
// is over quota.
type QuotaEnforcer struct {
	files      *filestore.Store
	quotaBytes int64
	hook       EvictionHook
	logger     *slog.Logger
	now        func() time.Time
}

// QuotaResult reports one quota sweep.
type QuotaResult struct {
	UsageBytes      int64    `json:"usage_bytes"`
	QuotaBytes      int64    `json:"quota_bytes"`
	FinalUsageBytes int64    `json:"final_usage_bytes"`
	CandidateCount  int      `json:"candidate_count"`
	EvictedCount    int      `json:"evicted_count"`
	SkippedCount    int      `json:"skipped_count"`
	FailedCount     int      `json:"failed_count"`
	ReclaimedBytes  int64    `json:"reclaimed_bytes"`
	Evicted         []string `json:"evicted,omitempty"`
	DryRun          bool     `json:"dry_run"`
}

type quotaCandidate struct {
	path    string
	rel     string
	size    int64
	modTime time.Time
}

// NewQuotaEnforcer constructs a QuotaEnforcer. hook may be nil.
func NewQuotaEnforcer(files *filestore.Store, quotaBytes int64, hook EvictionHook, logger *slog.Logger) *QuotaEnforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaEnforcer{
		files:      files,
		quotaBytes: quotaBytes,
		hook:       hook,
		logger:     logger.With("component", "quota"),
		now:        time.Now,
	}
}

// Sweep evicts files until usage is within quota.
func (q *QuotaEnforcer) Sweep(ctx context.Context) (QuotaResult, error) {
	return q.Run(ctx, false)
}

// Run performs one sweep. With dryRun set, candidates are reported but
// nothing is moved. A non-positive quota disables eviction.
func (q *QuotaEnforcer) Run(ctx context.Context, dryRun bool) (QuotaResult, error) {
	if q == nil || q.files == nil {
		return QuotaResult{DryRun: dryRun}, fmt.Errorf("quota enforcer is not configured")
	}
	result := QuotaResult{QuotaBytes: q.quotaBytes, DryRun: dryRun}

	usage, candidates, err := q.scan(ctx)
	if err != nil {
		return result, err
	}
	result.UsageBytes = usage
	result.FinalUsageBytes = usage

	if q.quotaBytes <= 0 || usage <= q.quotaBytes {
		q.logger.Debug("usage within quota", "usage", humanize.IBytes(uint64(usage)), "quota", humanize.IBytes(uint64(max(q.quotaBytes, 0))))
		return result, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].rel < candidates[j].rel
		}
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	for _, c := range candidates {
		if result.FinalUsageBytes <= q.quotaBytes {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.CandidateCount++

		if dryRun {
			result.Evicted = append(result.Evicted, c.rel)
			result.EvictedCount++
			result.ReclaimedBytes += c.size
			result.FinalUsageBytes -= c.size
			continue
		}

		if err := q.evict(c); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				q.logger.Debug("candidate vanished during sweep", "path", c.rel)
				result.SkippedCount++
				continue
			}
			q.logger.Warn("evict file", "path", c.rel, "error", err)
			result.FailedCount++
			continue
		}
		result.Evicted = append(result.Evicted, c.rel)
		result.EvictedCount++
		result.ReclaimedBytes += c.size
		result.FinalUsageBytes -= c.size
		q.forget(ctx, c.rel)
	}

	level := slog.LevelInfo
	if result.FinalUsageBytes > q.quotaBytes {
		level = slog.LevelWarn
	}
	q.logger.Log(ctx, level, "quota sweep finished",
		"usage", humanize.IBytes(uint64(result.UsageBytes)),
		"final_usage", humanize.IBytes(uint64(max(result.FinalUsageBytes, 0))),
		"quota", humanize.IBytes(uint64(q.quotaBytes)),
		"evicted", result.EvictedCount,
		"failed", result.FailedCount,
		"dry_run", dryRun,
	)
	return result, nil
}

// scan sums every regular file under the root except .trash and collects
// the files under tasks/ as eviction candidates.
func (q *QuotaEnforcer) scan(ctx context.Context) (int64, []quotaCandidate, error) {
	root := q.files.Root()
	trash := q.files.TrashPath()
	var usage int64
	var candidates []quotaCandidate

	err := afero.Walk(q.files.Fs(), root, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if path == root {
				return err
			}
			q.logger.Warn("scan entry", "path", path, "error", err)
			return nil
		}
		if info.IsDir() {
			if path == trash {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		usage += info.Size()

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, filestore.TasksDir+"/") {
			candidates = append(candidates, quotaCandidate{path: path, rel: rel, size: info.Size(), modTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return usage, candidates, nil
}

func (q *QuotaEnforcer) evict(c quotaCandidate) error {
	if _, err := q.files.Fs().Stat(c.path); err != nil {
		return err
	}
	now := q.now()
	base := strconv.FormatInt(now.UnixNano(), 10) + "-" + strings.ReplaceAll(c.rel, "/", "_")
	for attempt := 0; attempt < maxTrashNameAttempts; attempt++ {
		name := base
		if attempt > 0 {
			name = base + "-" + strconv.Itoa(attempt)
		}
		dst := filepath.Join(q.files.TrashPath(), name)
		err := filestore.MoveFile(q.files.Fs(), c.path, dst)
		if errors.Is(err, filestore.ErrExists) {
			continue
		}
		if err != nil {
			return err
		}
		// Trash age counts from eviction, not from upload.
		if err := q.files.Fs().Chtimes(dst, now, now); err != nil {
			q.logger.Warn("reset trash entry mtime", "path", name, "error", err)
		}
		return nil
	}
	return fmt.Errorf("no free trash name for %s", c.rel)
}

func (q *QuotaEnforcer) forget(ctx context.Context, rel string) {
	if q.hook == nil {
		return
	}
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return
	}
	if err := q.hook.Forget(ctx, parts[1], parts[2]); err != nil {
		q.logger.Error("forget evicted file record", "task_id", parts[1], "file_name", parts[2], "error", err)
	}
}
