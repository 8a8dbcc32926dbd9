package main

import (
	"context"
	"errors"
	"net"

	"planner/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: verify PLANNER_ADMIN_TOKEN matches the server configuration.")
		case "payload_too_large":
			lines = append(lines, "hint: check uploads.max_file_bytes and uploads.max_request_bytes on the server.")
		case "precondition_failed":
			lines = append(lines, "hint: upload at least one photo with: planner upload <task-id> <file>")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify PLANNER_API_URL points to a planner server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase PLANNER_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a planner server is running at PLANNER_API_URL.",
			"hint: start local server manually with: planner srv",
			"hint: you can increase PLANNER_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
