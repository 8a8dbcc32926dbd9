package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"planner/internal/api"
	"planner/internal/config"
	"planner/internal/server"
)

// legacyImage is one manifest entry: an image that used to live inline as
// base64 in a database row.
type legacyImage struct {
	TaskID     string `yaml:"task_id" json:"task_id"`
	Name       string `yaml:"name" json:"name"`
	Type       string `yaml:"type" json:"type"`
	Data       string `yaml:"data" json:"data"`
	UploadedBy string `yaml:"uploaded_by" json:"uploaded_by"`
}

type legacyTaskResult struct {
	TaskID string              `json:"task_id"`
	Files  []api.UploadedFile  `json:"files"`
	Errors []api.UploadFailure `json:"errors"`
}

type legacyImportResult struct {
	DryRun bool               `json:"dry_run"`
	Stored int                `json:"stored"`
	Failed int                `json:"failed"`
	Tasks  []legacyTaskResult `json:"tasks"`
}

// legacyBatch groups the entries of one task that share an uploader, in
// manifest order.
type legacyBatch struct {
	taskID     string
	uploadedBy string
	images     []api.ImageUpload
}

func newImportLegacyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-legacy <manifest>",
		Short: "Import base64 images from a YAML or JSON manifest into task storage",
		Args:  requireExactlyArgs(1, "manifest path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			entries, err := parseLegacyManifest(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			var result legacyImportResult
			if dryRun {
				result = previewLegacyImport(entries, int64(cfg.Uploads.MaxFileBytes))
			} else {
				err = withLocalRuntime(cmd.Context(), cfg, func(rt *localRuntime) error {
					result = runLegacyImport(cmd.Context(), rt.uploads, entries, slog.Default().With("component", "import"))
					return nil
				})
				if err != nil {
					return err
				}
			}

			if *jsonOutput {
				return writeJSON(result)
			}
			return writeLegacyImportResult(result)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decode and validate entries without writing files")
	return cmd
}

// parseLegacyManifest reads a list of entries. JSON manifests parse as YAML.
func parseLegacyManifest(raw []byte) ([]legacyImage, error) {
	var entries []legacyImage
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("manifest has no entries")
	}
	for i := range entries {
		entries[i].TaskID = strings.TrimSpace(entries[i].TaskID)
		entries[i].UploadedBy = strings.TrimSpace(entries[i].UploadedBy)
	}
	return entries, nil
}

func groupLegacyEntries(entries []legacyImage) []legacyBatch {
	var batches []legacyBatch
	index := make(map[[2]string]int)
	for _, entry := range entries {
		key := [2]string{entry.TaskID, entry.UploadedBy}
		i, ok := index[key]
		if !ok {
			i = len(batches)
			index[key] = i
			batches = append(batches, legacyBatch{taskID: entry.TaskID, uploadedBy: entry.UploadedBy})
		}
		batches[i].images = append(batches[i].images, api.ImageUpload{Name: entry.Name, Type: entry.Type, Data: entry.Data})
	}
	return batches
}

func runLegacyImport(ctx context.Context, uploads *server.UploadService, entries []legacyImage, logger *slog.Logger) legacyImportResult {
	var result legacyImportResult
	for _, batch := range groupLegacyEntries(entries) {
		payloads := make([]server.UploadPayload, 0, len(batch.images))
		for _, image := range batch.images {
			payloads = append(payloads, server.DecodeImagePayload(image, uploads.MaxFileBytes()))
		}

		upload, err := uploads.Upload(ctx, batch.taskID, payloads, batch.uploadedBy)
		if err != nil {
			logger.Warn("skip legacy batch", "task_id", batch.taskID, "error", err)
			upload = rejectAll(batch, err)
		}
		result.add(batch.taskID, upload)
	}
	return result
}

func previewLegacyImport(entries []legacyImage, maxFileBytes int64) legacyImportResult {
	result := legacyImportResult{DryRun: true}
	for _, batch := range groupLegacyEntries(entries) {
		if err := server.ValidateTaskID(batch.taskID); err != nil {
			result.add(batch.taskID, rejectAll(batch, err))
			continue
		}
		var preview server.UploadResult
		for _, image := range batch.images {
			payload := server.DecodeImagePayload(image, maxFileBytes)
			outcome := server.FileOutcome{Name: payload.Name, Err: payload.Err}
			if payload.Err == nil {
				outcome.Stored = &api.UploadedFile{Name: payload.Name, Size: int64(len(payload.Data)), Type: payload.MediaType}
			}
			preview.Files = append(preview.Files, outcome)
		}
		result.add(batch.taskID, preview)
	}
	return result
}

func rejectAll(batch legacyBatch, err error) server.UploadResult {
	var result server.UploadResult
	for _, image := range batch.images {
		result.Files = append(result.Files, server.FileOutcome{Name: image.Name, Err: err})
	}
	return result
}

func (r *legacyImportResult) add(taskID string, upload server.UploadResult) {
	_, resp := upload.Response()
	r.Stored += len(resp.Files)
	r.Failed += len(resp.Errors)
	r.Tasks = append(r.Tasks, legacyTaskResult{TaskID: taskID, Files: resp.Files, Errors: resp.Errors})
}

func writeLegacyImportResult(result legacyImportResult) error {
	mode := "imported"
	if result.DryRun {
		mode = "dry run"
	}
	for _, task := range result.Tasks {
		for _, failure := range task.Errors {
			if err := writePlain("task %s: %s failed: %s\n", task.TaskID, failure.Name, failure.Error); err != nil {
				return err
			}
		}
	}
	return writePlain("%s: stored=%d failed=%d tasks=%d\n", mode, result.Stored, result.Failed, len(result.Tasks))
}
