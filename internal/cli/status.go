// Package cli renders operator-facing status output for the application
// binary: a colored, humanized table over the coordinator's task health
// snapshot, plus the thin HTTP client the submit/status subcommands use.
package cli

import (
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// TaskStatus mirrors coordinator.TaskStatus without importing the
// coordinator package, so the CLI stays a pure HTTP client of it.
type TaskStatus struct {
	JobID     string    `json:"job_id"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"last_seen"`
	Unhealthy bool      `json:"unhealthy"`
}

type statusResponse struct {
	Code  int          `json:"code"`
	Tasks []TaskStatus `json:"tasks"`
}

// DecodeStatusResponse parses the coordinator's GET /v1/jobs/{id}/status
// body.
func DecodeStatusResponse(body []byte) ([]TaskStatus, error) {
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("cli: decode status response: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("cli: coordinator returned code %d", resp.Code)
	}
	return resp.Tasks, nil
}

// RenderStatusTable writes a human-readable table of tasks to w, coloring
// each row by health and humanizing the time since its last heartbeat.
func RenderStatusTable(w io.Writer, tasks []TaskStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Job", "Task", "Status", "Last Heartbeat", "Health"})

	healthy := color.New(color.FgGreen).SprintFunc()
	unhealthy := color.New(color.FgRed, color.Bold).SprintFunc()

	for _, task := range tasks {
		health := healthy("Healthy")
		if task.Unhealthy {
			health = unhealthy("Unhealthy")
		}
		t.AppendRow(table.Row{
			task.JobID,
			task.TaskID,
			task.Status,
			humanize.Time(task.LastSeen),
			health,
		})
	}
	if len(tasks) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", "-", "-"})
	}
	t.Render()
}
