package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"planner/internal/api"
	"planner/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeTaskList(tasks []api.TaskResponse) error {
	for _, task := range tasks {
		if err := writePlain("%s\n", formatTaskLine(task)); err != nil {
			return err
		}
	}
	return nil
}

func writeTaskDetail(task api.TaskResponse) error {
	lines := []string{
		fmt.Sprintf("id: %d", task.ID),
		fmt.Sprintf("title: %s", task.Title),
		fmt.Sprintf("status: %s", task.Status),
		fmt.Sprintf("priority: %s", task.Priority),
		fmt.Sprintf("created_at: %s", formatTime(task.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(task.UpdatedAt)),
	}
	if task.AssignedTo != "" {
		lines = append(lines, fmt.Sprintf("assigned_to: %s", task.AssignedTo))
	}
	if task.Date != "" {
		lines = append(lines, fmt.Sprintf("date: %s", task.Date))
	}
	if task.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", task.Description))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatTaskLine(task api.TaskResponse) string {
	return fmt.Sprintf("○ %d [%s] [%s] - %s", task.ID, task.Priority, task.Status, task.Title)
}

func writeImageList(images []api.ImageDescriptor) error {
	for _, image := range images {
		line := fmt.Sprintf("%s  %s", image.Name, image.URL)
		if image.Size != nil {
			line += "  " + humanize.IBytes(uint64(*image.Size))
		}
		if image.UploadedBy != nil {
			line += "  by " + *image.UploadedBy
		}
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func writeUploadResult(resp api.UploadResponse) error {
	for _, file := range resp.Files {
		if err := writePlain("stored %s (%s)\n", file.URL, humanize.IBytes(uint64(file.Size))); err != nil {
			return err
		}
	}
	for _, failure := range resp.Errors {
		if err := writePlain("failed %s: %s [%s]\n", failure.Name, failure.Error, failure.Code); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
