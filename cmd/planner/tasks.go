package main

import (
	"net/url"

	"github.com/spf13/cobra"

	"planner/internal/api"
	"planner/internal/config"
	"planner/internal/models"
)

type createCmdOptions struct {
	status      string
	assignedTo  string
	date        string
	priority    string
	description string
}

func newCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	opts := &createCmdOptions{}
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  requireAtLeastArgs(1, "title is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := buildCreateRequest(opts, args)
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.CreateTask(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%d\n", resp.ID)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.status, "status", "s", "", "initial status")
	cmd.Flags().StringVarP(&opts.assignedTo, "assigned-to", "a", "", "assignee")
	cmd.Flags().StringVar(&opts.date, "date", "", "scheduled date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&opts.priority, "priority", "p", "", "priority: Baja|Media|Alta")
	cmd.Flags().StringVarP(&opts.description, "description", "d", "", "description")
	return cmd
}

func buildCreateRequest(opts *createCmdOptions, args []string) api.TaskCreateRequest {
	req := api.TaskCreateRequest{Title: joinArgs(args)}
	req.Status = optionalString(opts.status)
	req.AssignedTo = optionalString(opts.assignedTo)
	req.Date = optionalString(opts.date)
	req.Priority = optionalString(opts.priority)
	req.Description = optionalString(opts.description)
	return req
}

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task details",
		Args:  requireTaskID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeTaskDetail(resp)
			})
		},
	}
}

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		status     string
		assignedTo string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				query := url.Values{}
				setIfNotEmpty(query, "status", status)
				setIfNotEmpty(query, "assignedTo", assignedTo)
				if limit > 0 {
					query.Set("limit", intToString(limit))
				}
				if offset > 0 {
					query.Set("offset", intToString(offset))
				}

				resp, err := client.ListTasks(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeTaskList(resp)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "status filter (comma separated)")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit results")
	cmd.Flags().IntVar(&offset, "offset", 0, "offset results")
	return cmd
}

func newDoneCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task finished (requires at least one uploaded photo)",
		Args:  requireTaskID,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := string(models.StatusDone)
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UpdateTask(cmd.Context(), args[0], api.TaskUpdateRequest{Status: &status})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", formatTaskLine(resp))
			})
		},
	}
}

func newStatusCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health, store and upload root status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("status: %s\nstore: %s ok=%t\nupload_root: %s writable=%t\nmetadata_degraded: %t\n",
					resp.Status, resp.StoreDriver, resp.StoreOK, resp.UploadRoot, resp.UploadRootWritable, resp.MetadataDegraded)
			})
		},
	}
}
