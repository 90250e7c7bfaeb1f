package transcription

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/meetingd/meetingd/internal/types"
)

// submitResponse is the jobs API reply to a submission.
type submitResponse struct {
	JobID string `json:"job_id"`
}

// jobStatusResponse is the lightweight polling reply.
type jobStatusResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// jobResponse is the full job including the result once completed.
type jobResponse struct {
	Status string                     `json:"status"`
	Result *types.TranscriptionResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// RemoteTranscriber submits audio files to the remote jobs API and polls
// until the job finishes. Retry and progress reporting live on the server
// side; this client makes one submission and waits.
type RemoteTranscriber struct {
	client       *resty.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// NewRemoteTranscriber creates a transcriber for the given jobs API base
// URL. The timeout bounds the total wait for one transcription.
func NewRemoteTranscriber(baseURL string, timeout time.Duration) *RemoteTranscriber {
	return &RemoteTranscriber{
		client:       resty.New().SetBaseURL(baseURL),
		pollInterval: 2 * time.Second,
		timeout:      timeout,
	}
}

// SubmitAndPoll uploads the audio file and waits for the transcription
// result, polling job status until completion, failure, or timeout.
func (r *RemoteTranscriber) SubmitAndPoll(ctx context.Context, path, language string) (*types.TranscriptionResult, error) {
	log.Printf("Submitting file for transcription: %s", path)

	jobID, err := r.submit(ctx, path, language)
	if err != nil {
		return nil, err
	}
	log.Printf("Transcription job submitted: %s", jobID)

	deadline := time.Now().Add(r.timeout)
	lastStatus := ""

	for time.Now().Before(deadline) {
		status, err := r.getStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if status.Status != lastStatus {
			log.Printf("Transcription job %s status: %s (%d%%)", jobID, status.Status, status.Progress)
			lastStatus = status.Status
		}

		switch status.Status {
		case types.StatusCompleted:
			job, err := r.getJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if job.Result == nil {
				return nil, fmt.Errorf("transcription job completed but no result available")
			}
			log.Printf("Transcription complete: %d chars", len(job.Result.Text))
			return job.Result, nil
		case types.StatusFailed:
			job, err := r.getJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			msg := job.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("transcription failed: %s", msg)
		case types.StatusCancelled:
			return nil, fmt.Errorf("transcription job was cancelled")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}

	return nil, fmt.Errorf("transcription timed out after %s", r.timeout)
}

func (r *RemoteTranscriber) submit(ctx context.Context, path, language string) (string, error) {
	var result submitResponse
	req := r.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetResult(&result)
	if language != "" {
		req.SetFormData(map[string]string{"language": language})
	}

	resp, err := req.Post("/api/jobs")
	if err != nil {
		return "", fmt.Errorf("failed to submit transcription job: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transcription submit failed: %s: %s", resp.Status(), resp.String())
	}
	if result.JobID == "" {
		return "", fmt.Errorf("transcription submit returned no job id")
	}
	return result.JobID, nil
}

func (r *RemoteTranscriber) getStatus(ctx context.Context, jobID string) (*jobStatusResponse, error) {
	var status jobStatusResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&status).
		Get(fmt.Sprintf("/api/jobs/%s/status", jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to poll job status: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("job status request failed: %s", resp.Status())
	}
	return &status, nil
}

func (r *RemoteTranscriber) getJob(ctx context.Context, jobID string) (*jobResponse, error) {
	var job jobResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&job).
		Get(fmt.Sprintf("/api/jobs/%s", jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("job fetch failed: %s", resp.Status())
	}
	return &job, nil
}
