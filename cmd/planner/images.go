package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"planner/internal/api"
	"planner/internal/config"
)

type uploadCmdOptions struct {
	uploadedBy string
	mediaType  string
}

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	opts := &uploadCmdOptions{}
	cmd := &cobra.Command{
		Use:   "upload <task-id> <file> [<file>...]",
		Short: "Upload photos to a task",
		Args:  requireAtLeastArgs(2, "task id and at least one file are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, closeAll, err := openUploadFiles(args[1:], opts.mediaType)
			if err != nil {
				return err
			}
			defer closeAll()

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UploadImages(cmd.Context(), args[0], opts.uploadedBy, files)
				if *jsonOutput && (err == nil || len(resp.Errors) > 0) {
					if writeErr := writeJSON(resp); writeErr != nil {
						return writeErr
					}
					return err
				}
				if err != nil {
					return err
				}
				return writeUploadResult(resp)
			})
		},
	}

	cmd.Flags().StringVar(&opts.uploadedBy, "by", "", "uploader name recorded with each file")
	cmd.Flags().StringVar(&opts.mediaType, "type", "", "media type sent for every file (default: detected by the server)")
	return cmd
}

func openUploadFiles(paths []string, mediaType string) ([]api.UploadFile, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	files := make([]api.UploadFile, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		opened = append(opened, f)
		files = append(files, api.UploadFile{Name: filepath.Base(path), Type: mediaType, Content: f})
	}
	return files, closeAll, nil
}

func newImagesCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "images <task-id>",
		Short: "List photos of a task, newest first",
		Args:  requireTaskID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListImages(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeImageList(resp.Files)
			})
		},
	}
}
