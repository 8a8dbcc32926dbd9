package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"planner/internal/filestore"
)

// TrashPurger permanently removes trash entries older than the retention
// window.
type TrashPurger struct {
	files     *filestore.Store
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// PurgeResult reports one trash purge.
type PurgeResult struct {
	ScannedCount   int   `json:"scanned_count"`
	CandidateCount int   `json:"candidate_count"`
	PurgedCount    int   `json:"purged_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// NewTrashPurger constructs a TrashPurger.
func NewTrashPurger(files *filestore.Store, retention time.Duration, logger *slog.Logger) *TrashPurger {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrashPurger{
		files:     files,
		retention: retention,
		logger:    logger.With("component", "trash"),
		now:       time.Now,
	}
}

// Sweep purges expired trash entries.
func (p *TrashPurger) Sweep(ctx context.Context) (PurgeResult, error) {
	return p.Run(ctx, false)
}

// Run performs one purge. Entries are purged only when their age strictly
// exceeds the retention window.
func (p *TrashPurger) Run(ctx context.Context, dryRun bool) (PurgeResult, error) {
	result := PurgeResult{DryRun: dryRun}
	if p == nil || p.files == nil {
		return result, fmt.Errorf("trash purger is not configured")
	}

	entries, err := afero.ReadDir(p.files.Fs(), p.files.TrashPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return result, err
	}

	now := p.now()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.ScannedCount++
		if now.Sub(entry.ModTime()) <= p.retention {
			continue
		}
		result.CandidateCount++

		path := filepath.Join(p.files.TrashPath(), entry.Name())
		size := entry.Size()
		if entry.IsDir() {
			size = p.treeSize(path)
		}
		if dryRun {
			result.PurgedCount++
			result.ReclaimedBytes += size
			continue
		}
		if err := p.files.Fs().RemoveAll(path); err != nil {
			p.logger.Warn("purge trash entry", "path", entry.Name(), "error", err)
			result.FailedCount++
			continue
		}
		result.PurgedCount++
		result.ReclaimedBytes += size
	}

	if result.CandidateCount > 0 {
		p.logger.Info("trash purge finished",
			"purged", result.PurgedCount,
			"failed", result.FailedCount,
			"reclaimed", humanize.IBytes(uint64(result.ReclaimedBytes)),
			"dry_run", dryRun,
		)
	}
	return result, nil
}

func (p *TrashPurger) treeSize(root string) int64 {
	var total int64
	_ = afero.Walk(p.files.Fs(), root, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
