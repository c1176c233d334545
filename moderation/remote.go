package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteClassifier talks to the external content classification service.
// The service runs jobs asynchronously: a submit returns a job id and the
// caller polls until the job settles.
type RemoteClassifier struct {
	baseURL string
	client  *http.Client
}

func NewRemoteClassifier(baseURL string) *RemoteClassifier {
	return &RemoteClassifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type startJobRequest struct {
	Key string `json:"key"`
}

type startJobResponse struct {
	JobID string `json:"job_id"`
}

type jobStatusResponse struct {
	Status string `json:"status"`
	Labels []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"labels"`
}

func (r *RemoteClassifier) StartJob(ctx context.Context, key string) (string, error) {
	body, err := json.Marshal(startJobRequest{Key: key})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/moderation/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to start classification job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("classification service returned %d", resp.StatusCode)
	}

	var out startJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("classification service returned empty job id")
	}
	return out.JobID, nil
}

func (r *RemoteClassifier) GetJob(ctx context.Context, jobID string) (*JobResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/moderation/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll classification job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classification service returned %d", resp.StatusCode)
	}

	var out jobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	result := &JobResult{Status: JobStatus(out.Status)}
	for _, l := range out.Labels {
		result.Labels = append(result.Labels, Label{Name: l.Name, Confidence: l.Confidence})
	}
	return result, nil
}
