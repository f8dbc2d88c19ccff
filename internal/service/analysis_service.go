package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/fetch"
	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/transform"
)

const (
	TaskTypeAnalyze = "analyze:process"
	QueueAnalyze    = "analyze"
)

// Validation errors surfaced by Submit before anything reaches the provider.
var (
	ErrUnsupportedType   = errors.New("unsupported audio content type")
	ErrSignatureMismatch = errors.New("file signature does not match declared type")
)

// TaskEnqueuer is the slice of asynq.Client the service needs.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AnalysisService owns the analysis job lifecycle: it verifies the uploaded
// audio, hands it to the provider, and mediates the two-phase submit/poll
// protocol over the job store. The worker drives the provider side; this
// service only ever watches the job record.
type AnalysisService struct {
	store       JobStore
	enqueuer    TaskEnqueuer
	musicai     client.AudioAnalyzer
	fetcher     *fetch.Fetcher
	transformer *transform.Transformer
	retry       client.RetryPolicy

	maxSize       int64
	submitWait    time.Duration
	pollWait      time.Duration
	watchInterval time.Duration
}

func NewAnalysisService(
	store JobStore,
	enqueuer TaskEnqueuer,
	musicai client.AudioAnalyzer,
	fetcher *fetch.Fetcher,
	transformer *transform.Transformer,
	retry client.RetryPolicy,
	maxSize int64,
	submitWait, pollWait time.Duration,
) *AnalysisService {
	return &AnalysisService{
		store:         store,
		enqueuer:      enqueuer,
		musicai:       musicai,
		fetcher:       fetcher,
		transformer:   transformer,
		retry:         retry,
		maxSize:       maxSize,
		submitWait:    submitWait,
		pollWait:      pollWait,
		watchInterval: 500 * time.Millisecond,
	}
}

// SetWatchInterval overrides how often the job record is re-read while
// waiting. Tests shorten it.
func (s *AnalysisService) SetWatchInterval(d time.Duration) {
	s.watchInterval = d
}

// Submit runs the first phase of the protocol: fetch and verify the audio,
// hand it to the provider, queue the tracking job, then wait up to the
// submit window for the result. If the window elapses first the caller gets
// a pending outcome with the job ID to poll.
func (s *AnalysisService) Submit(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisOutcome, error) {
	if !fetch.AllowedType(req.Type) {
		return nil, ErrUnsupportedType
	}

	dl, err := s.fetcher.FetchVerified(ctx, req.URL, fetch.Expectation{
		Size:    req.Size,
		SHA256:  req.ChecksumSHA256,
		MaxSize: s.maxSize,
	})
	if err != nil {
		return nil, err
	}
	defer dl.Cleanup()

	if err := s.checkSignature(dl.Path, req.Type); err != nil {
		return nil, err
	}

	// Without a provider, answer with a canned analysis so the rest of the
	// product keeps working in development
	if s.musicai == nil || !s.musicai.IsConfigured() {
		return s.submitMock(ctx, req)
	}

	var target *client.UploadTarget
	if err := s.retry.Do(ctx, func(ctx context.Context) error {
		var uploadErr error
		target, uploadErr = s.musicai.UploadFile(ctx, dl.Path, req.Type)
		return uploadErr
	}); err != nil {
		return nil, fmt.Errorf("provider upload failed: %w", err)
	}

	var providerJobID string
	if err := s.retry.Do(ctx, func(ctx context.Context) error {
		var createErr error
		providerJobID, createErr = s.musicai.CreateJob(ctx, req.FileName, target.DownloadURL)
		return createErr
	}); err != nil {
		return nil, fmt.Errorf("provider job creation failed: %w", err)
	}

	jobID := uuid.New().String()
	job := &model.Job{
		ID:            jobID,
		Type:          model.JobTypeAnalyze,
		Status:        model.JobStatusQueued,
		ProviderJobID: providerJobID,
		FileName:      req.FileName,
		Size:          req.Size,
		ContentType:   req.Type,
		CreatedAt:     time.Now(),
	}
	if err := s.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newAnalyzeTask(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if _, err := s.enqueuer.Enqueue(task,
		asynq.Queue(QueueAnalyze),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Printf("Analysis job %s queued (provider job %s)", jobID, providerJobID)
	return s.watchJob(ctx, jobID, s.submitWait)
}

// PollStatus runs the second phase: resume waiting on an existing job for
// up to the poll window.
func (s *AnalysisService) PollStatus(ctx context.Context, jobID string) (*model.AnalysisOutcome, error) {
	if _, err := s.store.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.watchJob(ctx, jobID, s.pollWait)
}

// watchJob re-reads the job record until it turns terminal or the wait
// window elapses, whichever comes first.
func (s *AnalysisService) watchJob(ctx context.Context, jobID string, wait time.Duration) (*model.AnalysisOutcome, error) {
	deadline := time.Now().Add(wait)

	for {
		job, err := s.store.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if outcome, done := outcomeFromJob(job); done {
			return outcome, nil
		}

		if time.Now().After(deadline) {
			return model.Pending(jobID), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.watchInterval):
		}
	}
}

// outcomeFromJob maps a terminal job record to its outcome.
func outcomeFromJob(job *model.Job) (*model.AnalysisOutcome, bool) {
	switch job.Status {
	case model.JobStatusSucceeded:
		var result model.AnalysisResult
		if err := json.Unmarshal(job.Result, &result); err != nil {
			return model.Failed(&model.JobError{
				Code:    "ANALYSIS_FAILED",
				Message: "stored result is unreadable",
			}), true
		}
		return model.Done(&result), true
	case model.JobStatusFailed:
		jobErr := job.Error
		if jobErr == nil {
			jobErr = &model.JobError{Code: "ANALYSIS_FAILED", Message: "analysis failed"}
		}
		return model.Failed(jobErr), true
	default:
		return nil, false
	}
}

// GetJob returns the raw job record.
func (s *AnalysisService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

// UpdateJobProgress updates job progress (called by worker). A terminal job
// is left alone so a redelivered task cannot resurrect it.
func (s *AnalysisService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.store.Save(ctx, job)
}

// CompleteJob marks the job as succeeded with its result (called by worker).
func (s *AnalysisService) CompleteJob(ctx context.Context, jobID string, result *model.AnalysisResult) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.CurrentStep = ""
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.store.Save(ctx, job)
}

// FailJob marks the job as failed (called by worker).
func (s *AnalysisService) FailJob(ctx context.Context, jobID, code, message string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	job.Status = model.JobStatusFailed
	job.Error = &model.JobError{Code: code, Message: message}
	now := time.Now()
	job.CompletedAt = &now

	return s.store.Save(ctx, job)
}

// checkSignature reads the file head and verifies the magic bytes agree
// with the declared content type.
func (s *AnalysisService) checkSignature(path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open download: %w", err)
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := f.Read(head)
	if err != nil {
		return fmt.Errorf("failed to read download: %w", err)
	}
	if !fetch.MatchesDeclaredType(head[:n], contentType) {
		return ErrSignatureMismatch
	}
	return nil
}

// submitMock records a succeeded job with a canned result and returns it.
func (s *AnalysisService) submitMock(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisOutcome, error) {
	jobID := uuid.New().String()
	result := mockAnalysisResult(jobID, req)

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := &model.Job{
		ID:          jobID,
		Type:        model.JobTypeAnalyze,
		Status:      model.JobStatusSucceeded,
		Progress:    100,
		FileName:    req.FileName,
		Size:        req.Size,
		ContentType: req.Type,
		Result:      resultBytes,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := s.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	log.Printf("Analysis job %s completed (mock)", jobID)
	return model.Done(result), nil
}

func mockAnalysisResult(id string, req *model.AnalyzeRequest) *model.AnalysisResult {
	return &model.AnalysisResult{
		ID:       id,
		Provider: "mock",
		Data: model.AnalysisData{
			FileName: req.FileName,
			Size:     req.Size,
			Type:     req.Type,
			Tempo:    120,
			Mood:     "balanced",
			AnalyzedTrack: model.AnalyzedTrack{
				Moods:         []string{"dreamy", "uplifting"},
				Genres:        []string{"indie pop"},
				Subgenres:     []string{"dream pop"},
				Instruments:   []string{"drums", "guitar", "synthesizer"},
				EnergyLevel:   "medium",
				Emotion:       "hopeful",
				Language:      "en",
				Key:           "A minor",
				TimeSignature: "4/4",
				VoicePresence: "lead vocals",
				MusicalEra:    "2020s",
				Duration:      212.4,
			},
		},
	}
}

func newAnalyzeTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(model.AnalyzeTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAnalyze, data), nil
}
