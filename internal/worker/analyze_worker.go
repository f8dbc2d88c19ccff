package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/service"
	"github.com/artistamplifier/api/internal/transform"
	"github.com/artistamplifier/api/internal/websocket"
)

// AnalyzeWorker drives a provider analysis job to completion: it polls the
// provider, transforms the raw result, and writes the canonical result onto
// the job record the API handlers are watching.
type AnalyzeWorker struct {
	analysisService *service.AnalysisService
	musicaiClient   client.AudioAnalyzer
	transformer     *transform.Transformer
	retry           client.RetryPolicy
	hub             *websocket.Hub

	pollInterval time.Duration
	maxWait      time.Duration
}

// NewAnalyzeWorker creates a new analysis worker
func NewAnalyzeWorker(
	analysisService *service.AnalysisService,
	musicaiClient client.AudioAnalyzer,
	transformer *transform.Transformer,
	retry client.RetryPolicy,
	hub *websocket.Hub,
	pollInterval, maxWait time.Duration,
) *AnalyzeWorker {
	return &AnalyzeWorker{
		analysisService: analysisService,
		musicaiClient:   musicaiClient,
		transformer:     transformer,
		retry:           retry,
		hub:             hub,
		pollInterval:    pollInterval,
		maxWait:         maxWait,
	}
}

// ProcessTask handles analysis task processing. Returning an error hands
// the task back to asynq for redelivery, so terminal provider failures are
// recorded on the job and swallowed here.
func (w *AnalyzeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.AnalyzeTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := payload.JobID
	log.Printf("Starting analysis job: %s", jobID)

	job, err := w.analysisService.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	// A redelivered task for a finished job is a no-op
	if job.Status.Terminal() {
		log.Printf("Analysis job %s already terminal (%s), skipping", jobID, job.Status)
		return nil
	}

	if job.ProviderJobID == "" {
		w.failJob(ctx, jobID, "ANALYSIS_FAILED", "job record has no provider job")
		return nil
	}

	w.updateProgress(ctx, jobID, 10, "Waiting for analysis...")

	providerJob, err := w.pollProvider(ctx, jobID, job.ProviderJobID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		code, message := classifyProviderError(err)
		w.failJob(ctx, jobID, code, message)
		return nil
	}

	w.updateProgress(ctx, jobID, 80, "Shaping results...")

	result, err := w.transformer.Transform(ctx, jobID, providerJob.Result, transform.FileMeta{
		Name: job.FileName,
		Size: job.Size,
		Type: job.ContentType,
	})
	if err != nil {
		w.failJob(ctx, jobID, "ANALYSIS_EMPTY_RESPONSE", fmt.Sprintf("unusable provider result: %v", err))
		return nil
	}

	if err := w.analysisService.CompleteJob(ctx, jobID, result); err != nil {
		w.failJob(ctx, jobID, "ANALYSIS_FAILED", "failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, result)
	log.Printf("Analysis job %s completed", jobID)
	return nil
}

// pollProvider loops on the provider job until it turns terminal. Each
// status read goes through the retry policy so a transient provider blip
// does not kill a long-running job.
func (w *AnalyzeWorker) pollProvider(ctx context.Context, jobID, providerJobID string) (*client.ProviderJob, error) {
	deadline := time.Now().Add(w.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++

		var providerJob *client.ProviderJob
		err := w.retry.Do(ctx, func(ctx context.Context) error {
			var getErr error
			providerJob, getErr = w.musicaiClient.GetJob(ctx, providerJobID)
			return getErr
		})
		if err != nil {
			log.Printf("Poll analysis #%d (job=%s) — error: %v", attempt, jobID, err)
			return nil, err
		}

		log.Printf("Poll analysis #%d (job=%s) — status: %s", attempt, jobID, providerJob.Status)

		switch providerJob.Status {
		case client.ProviderStatusSucceeded:
			return providerJob, nil
		case client.ProviderStatusFailed:
			message := "analysis failed at the provider"
			if providerJob.Error != nil && providerJob.Error.Message != "" {
				message = providerJob.Error.Message
			}
			return nil, &client.ProviderError{
				Status:  500,
				Code:    "ANALYSIS_FAILED",
				Message: message,
			}
		case client.ProviderStatusStarted:
			w.updateProgress(ctx, jobID, 50, "Analyzing audio...")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}

	return nil, &client.ProviderError{
		Status:  504,
		Code:    "ANALYSIS_TIMEOUT",
		Message: fmt.Sprintf("analysis did not finish within %v", w.maxWait),
	}
}

// classifyProviderError maps a provider failure to the stable job error.
func classifyProviderError(err error) (code, message string) {
	pe, ok := client.AsProviderError(err)
	if !ok {
		return "ANALYSIS_FAILED", err.Error()
	}
	if pe.Code == "ANALYSIS_FAILED" || pe.Code == "ANALYSIS_TIMEOUT" {
		return pe.Code, pe.Message
	}
	switch {
	case pe.Status == 429:
		return "ANALYSIS_RATE_LIMIT", "the analysis provider is rate limiting requests"
	case pe.Status >= 500:
		return "ANALYSIS_BAD_GATEWAY", "the analysis provider is unavailable"
	default:
		return "ANALYSIS_FAILED", pe.Message
	}
}

func (w *AnalyzeWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.analysisService.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *AnalyzeWorker) failJob(ctx context.Context, jobID, code, message string) {
	if err := w.analysisService.FailJob(ctx, jobID, code, message); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	w.hub.BroadcastError(jobID, code, message)
}
