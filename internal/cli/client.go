package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

type jobSubmission struct {
	Format string `json:"format"`
	Spec   string `json:"spec"`
}

type jobEnvelope struct {
	Code  int    `json:"code"`
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// FetchStatus retrieves and decodes a job's task status from a running
// coordinator at coordinatorAddr.
func FetchStatus(ctx context.Context, coordinatorAddr, jobID string) ([]TaskStatus, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://%s/v1/jobs/%s/status", coordinatorAddr, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cli: fetch status: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cli: read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cli: coordinator returned %s", resp.Status)
	}
	return DecodeStatusResponse(body)
}

// SubmitJob posts a pipeline spec to a running coordinator's job submission
// endpoint and returns the assigned job id.
func SubmitJob(ctx context.Context, coordinatorAddr, format string, spec []byte) (string, error) {
	body, err := json.Marshal(jobSubmission{Format: format, Spec: string(spec)})
	if err != nil {
		return "", fmt.Errorf("cli: encode job submission: %w", err)
	}

	url := fmt.Sprintf("http://%s/v1/jobs", coordinatorAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cli: submit job: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("cli: read submit response: %w", err)
	}

	var env jobEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return "", fmt.Errorf("cli: decode submit response: %w", err)
	}
	if resp.StatusCode >= 300 || env.Error != "" {
		return "", fmt.Errorf("cli: coordinator rejected job: %s", env.Error)
	}
	return env.JobID, nil
}
