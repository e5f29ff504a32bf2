package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"

	"github.com/flowmesh/dataflow/internal/dag"
)

// metadataEnvelope mirrors the coordinator's {code, data} JSON shape:
// code=0 is success, non-zero is retryable.
type metadataEnvelope struct {
	Code int                       `json:"code"`
	Data dag.ApplicationDescriptor `json:"data"`
}

// MetadataPoller fetches the coordinator's ApplicationDescriptor for one
// job, retrying transient failures with exponential backoff seeded at a
// 2s base interval.
type MetadataPoller struct {
	Client          *http.Client
	CoordinatorAddr string
	JobID           string
	Logger          *slog.Logger
}

// NewMetadataPoller builds a poller against coordinatorAddr for jobID,
// defaulting to a 10s HTTP client timeout.
func NewMetadataPoller(coordinatorAddr, jobID string, logger *slog.Logger) *MetadataPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataPoller{
		Client:          &http.Client{Timeout: 10 * time.Second},
		CoordinatorAddr: coordinatorAddr,
		JobID:           jobID,
		Logger:          logger,
	}
}

// Fetch retries GET /v1/jobs/{id} until it succeeds or ctx is done; no
// other endpoint is tried.
func (p *MetadataPoller) Fetch(ctx context.Context) (*dag.ApplicationDescriptor, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxElapsedTime = 0 // retry forever, bounded only by ctx

	var descriptor *dag.ApplicationDescriptor
	op := func() error {
		d, err := p.fetchOnce(ctx)
		if err != nil {
			p.Logger.Warn("metadata fetch failed, retrying", "job_id", p.JobID, "error", err)
			return err
		}
		descriptor = d
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("worker: fetch metadata for job %q: %w", p.JobID, err)
	}
	return descriptor, nil
}

func (p *MetadataPoller) fetchOnce(ctx context.Context) (*dag.ApplicationDescriptor, error) {
	url := fmt.Sprintf("http://%s/v1/jobs/%s", p.CoordinatorAddr, p.JobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var env metadataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("coordinator returned retryable code %d", env.Code)
	}
	return &env.Data, nil
}
